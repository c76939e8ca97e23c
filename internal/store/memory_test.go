package store

import (
	"context"
	"testing"

	"palaver/internal/forest"
	"palaver/internal/listing"
)

func TestMemoryApplyUpdates(t *testing.T) {
	mem, err := NewMemory(0)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	mem.Seed([]forest.BoardRow{
		{ID: 1, Name: "A", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Order: 1},
		{ID: 2, Name: "B", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Order: 2},
	})

	ctx := context.Background()
	err = mem.ApplyUpdates(ctx, []forest.RowUpdate{
		{Op: forest.RowOpUpdate, BoardID: 2, CategoryID: 1, ParentID: 1, Level: 1, Order: 2},
		{Op: forest.RowOpInsert, BoardID: 3, CategoryID: 1, Order: 3, Name: "C"},
		{Op: forest.RowOpDelete, BoardID: 1},
	})
	if err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}

	rows, err := mem.FetchAllRows(ctx)
	if err != nil {
		t.Fatalf("FetchAllRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.ID == 3 && row.CategoryName != "General" {
			t.Errorf("inserted row missing category fields: %+v", row)
		}
	}

	if err := mem.ApplyUpdates(ctx, []forest.RowUpdate{{Op: forest.RowOpUpdate, BoardID: 99}}); err == nil {
		t.Error("update of missing board succeeded")
	}
}

func TestMemoryAllocatesDistinctIDs(t *testing.T) {
	mem, err := NewMemory(0)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	ctx := context.Background()
	a, _ := mem.NextBoardID(ctx)
	b, _ := mem.NextBoardID(ctx)
	if a == 0 || a == b {
		t.Errorf("ids = %d, %d", a, b)
	}
}

func TestMemoryModeratorsOf(t *testing.T) {
	mem, err := NewMemory(0)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	mem.Seed([]forest.BoardRow{{ID: 1, Name: "A", CategoryID: 1, CategoryOrder: 1, Order: 1}})
	mem.SetModerators(1, []listing.ModeratorInfo{{ID: 7, Name: "gus"}})

	mods, err := mem.ModeratorsOf(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("ModeratorsOf: %v", err)
	}
	if len(mods) != 1 || len(mods[1]) != 1 || mods[1][0].Name != "gus" {
		t.Errorf("mods = %v", mods)
	}
}

func TestIDListCodec(t *testing.T) {
	if got := joinIDList([]int64{3, 1, 2}); got != "1,2,3" {
		t.Errorf("joinIDList = %q", got)
	}
	if got := parseIDList("1, 2,junk,,3"); len(got) != 3 || got[2] != 3 {
		t.Errorf("parseIDList = %v", got)
	}
	if got := parseIDList(""); got != nil {
		t.Errorf("empty list = %v", got)
	}
}

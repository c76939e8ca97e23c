package boardsvc

import (
	"context"
	"errors"
	"testing"

	"palaver/internal/access"
	"palaver/internal/forest"
	"palaver/internal/listing"
	"palaver/internal/settings"
	"palaver/internal/store"
)

func seededService(t *testing.T) (*Service, *store.Memory, *settings.LocalVersion) {
	t.Helper()
	mem, err := store.NewMemory(0)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	mem.Seed([]forest.BoardRow{
		{ID: 1, Name: "Announcements", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Order: 1, AllowedGroups: []int64{1}},
		{ID: 2, Name: "Support", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Order: 2, AllowedGroups: []int64{1, 2}},
		{ID: 3, Name: "Bugs", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, ParentID: 2, Level: 1, Order: 3, AllowedGroups: []int64{2}},
	})
	version := &settings.LocalVersion{}
	return New(mem, version, nil), mem, version
}

func TestMoveBoardPersistsAndBumpsVersion(t *testing.T) {
	svc, mem, version := seededService(t)
	ctx := context.Background()

	if err := svc.MoveBoard(ctx, 1, forest.After(2)); err != nil {
		t.Fatalf("MoveBoard: %v", err)
	}
	if got := version.Current(ctx); got != 1 {
		t.Errorf("version = %d, want 1", got)
	}

	rows, err := mem.FetchAllRows(ctx)
	if err != nil {
		t.Fatalf("FetchAllRows: %v", err)
	}
	f, _, err := forest.Build(rows)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	// After board 2 means after its subtree, so board 1 now trails board 3.
	if f.Boards[1].Order <= f.Boards[3].Order {
		t.Errorf("board 1 order %d should follow board 3 at %d", f.Boards[1].Order, f.Boards[3].Order)
	}
}

func TestMoveBoardRejectionLeavesVersionAlone(t *testing.T) {
	svc, _, version := seededService(t)
	ctx := context.Background()

	err := svc.MoveBoard(ctx, 2, forest.ChildOf(3, false))
	if !errors.Is(err, forest.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
	if got := version.Current(ctx); got != 0 {
		t.Errorf("rejected move bumped the version to %d", got)
	}
}

func TestCreateBoardAllocatesID(t *testing.T) {
	svc, mem, _ := seededService(t)
	ctx := context.Background()

	target := forest.ChildOf(2, true)
	b, err := svc.CreateBoard(ctx, forest.BoardSpec{
		Name:       "Feature requests",
		CategoryID: 1,
		Target:     &target,
	})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("no id allocated")
	}
	if b.ParentID != 2 || b.Level != 1 {
		t.Errorf("created = parent %d level %d, want parent 2 level 1", b.ParentID, b.Level)
	}

	rows, _ := mem.FetchAllRows(ctx)
	if len(rows) != 4 {
		t.Errorf("stored rows = %d, want 4", len(rows))
	}
}

func TestCreateCategory(t *testing.T) {
	svc, mem, version := seededService(t)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "Archive", 2, true)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if cat.ID == 0 {
		t.Fatal("no id allocated")
	}
	if got := version.Current(ctx); got != 1 {
		t.Errorf("version = %d, want 1", got)
	}

	// A board created in the new category picks up its denormalized fields.
	err = mem.ApplyUpdates(ctx, []forest.RowUpdate{
		{Op: forest.RowOpInsert, BoardID: 50, CategoryID: cat.ID, Order: 10, Name: "Old stuff"},
	})
	if err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}
	rows, _ := mem.FetchAllRows(ctx)
	for _, row := range rows {
		if row.ID == 50 && row.CategoryName != "Archive" {
			t.Errorf("new board missing category fields: %+v", row)
		}
	}
}

func TestDeleteBoardsReparents(t *testing.T) {
	svc, mem, _ := seededService(t)
	ctx := context.Background()

	target := int64(1)
	if err := svc.DeleteBoards(ctx, []int64{2}, &target); err != nil {
		t.Fatalf("DeleteBoards: %v", err)
	}

	rows, _ := mem.FetchAllRows(ctx)
	f, _, err := forest.Build(rows)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, alive := f.Boards[2]; alive {
		t.Error("deleted board still stored")
	}
	b3 := f.Boards[3]
	if b3 == nil || b3.ParentID != 1 || b3.Level != 1 {
		t.Errorf("board 3 = %+v, want parent 1 level 1", b3)
	}
}

func TestForestHealsStoredLevels(t *testing.T) {
	mem, err := store.NewMemory(0)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	mem.Seed([]forest.BoardRow{
		{ID: 1, Name: "Root", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, Level: 3, Order: 1},
		{ID: 2, Name: "Child", CategoryID: 1, CategoryName: "General", CategoryOrder: 1, ParentID: 1, Level: 5, Order: 2},
	})
	svc := New(mem, &settings.LocalVersion{}, nil)

	ctx := context.Background()
	if _, err := svc.Forest(ctx); err != nil {
		t.Fatalf("Forest: %v", err)
	}

	rows, _ := mem.FetchAllRows(ctx)
	for _, row := range rows {
		want := 0
		if row.ParentID != 0 {
			want = 1
		}
		if row.Level != want {
			t.Errorf("board %d stored level %d, want %d", row.ID, row.Level, want)
		}
	}
}

func TestIndexFiltersByGrant(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := context.Background()

	grant := access.Grant{Groups: []int64{1}}
	out, err := svc.Index(ctx, grant, listing.AggregateOptions{})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if _, ok := out.Board(1); !ok {
		t.Error("visible board missing from index")
	}
	if _, ok := out.Board(3); ok {
		t.Error("board outside the grant's groups was listed")
	}

	admin := access.Grant{IsAdmin: true}
	out, err = svc.Index(ctx, admin, listing.AggregateOptions{})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if _, ok := out.Board(3); !ok {
		t.Error("admin index missing a board")
	}
}

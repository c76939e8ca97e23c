package forest

import (
	"testing"

	"pgregory.net/rapid"
)

// TestRandomMutationsPreserveInvariants hammers a small forest with random
// move/create/delete sequences. Whatever the sequence, order values stay
// globally unique and every level matches the parent chain; rejected
// operations must leave the forest byte-identical.
func TestRandomMutationsPreserveInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rows := []BoardRow{
			row(1, 0, 0, 1),
			row(2, 0, 0, 2),
			row(3, 0, 0, 4),
			row(4, 2, 1, 3),
			{
				ID: 5, Name: "board", CategoryID: 2, CategoryName: "Archive",
				CategoryOrder: 2, Level: 0, Order: 5,
			},
		}
		f, _, err := Build(rows)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		nextID := int64(100)

		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ids := make([]int64, 0, len(f.Boards))
			for id := range f.Boards {
				ids = append(ids, id)
			}
			if len(ids) == 0 {
				break
			}

			before := f.Rows()
			var err error
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				board := rapid.SampledFrom(ids).Draw(t, "board")
				_, err = f.Move(board, drawTarget(t, f, ids))
			case 1:
				target := drawTarget(t, f, ids)
				_, _, err = f.Create(BoardSpec{
					ID:         nextID,
					Name:       "generated",
					CategoryID: 1,
					Target:     &target,
				})
				nextID++
			case 2:
				board := rapid.SampledFrom(ids).Draw(t, "board")
				var reparent *int64
				if len(ids) > 1 && rapid.Bool().Draw(t, "reparent") {
					other := rapid.SampledFrom(ids).Draw(t, "target")
					reparent = &other
				}
				_, err = f.Delete([]int64{board}, reparent)
			}

			if err != nil {
				if got := f.Rows(); !rowsEqual(before, got) {
					t.Fatalf("failed op mutated the forest: %v", err)
				}
				continue
			}
			checkInvariants(t, f)
		}
	})
}

// drawTarget picks an arbitrary valid-looking destination; invalid
// combinations (cycles, self-parenting) are expected to be rejected by the
// mutation itself.
func drawTarget(t *rapid.T, f *Forest, ids []int64) MoveTarget {
	switch rapid.IntRange(0, 4).Draw(t, "targetKind") {
	case 0:
		return Top(rapid.SampledFrom(f.CategoryOrder).Draw(t, "cat"))
	case 1:
		return Bottom(rapid.SampledFrom(f.CategoryOrder).Draw(t, "cat"))
	case 2:
		return ChildOf(rapid.SampledFrom(ids).Draw(t, "parent"), rapid.Bool().Draw(t, "first"))
	case 3:
		return Before(rapid.SampledFrom(ids).Draw(t, "sibling"))
	default:
		return After(rapid.SampledFrom(ids).Draw(t, "sibling"))
	}
}

func checkInvariants(t *rapid.T, f *Forest) {
	orders := make(map[int]int64, len(f.Boards))
	for id, b := range f.Boards {
		if prev, dup := orders[b.Order]; dup {
			t.Fatalf("boards %d and %d share order %d", prev, id, b.Order)
		}
		orders[b.Order] = id

		if b.ParentID == 0 {
			if b.Level != 0 {
				t.Fatalf("root board %d at level %d", id, b.Level)
			}
			continue
		}
		parent, ok := f.Boards[b.ParentID]
		if !ok {
			t.Fatalf("board %d references missing parent %d", id, b.ParentID)
		}
		if b.Level != parent.Level+1 {
			t.Fatalf("board %d level %d under parent level %d", id, b.Level, parent.Level)
		}
		if b.CategoryID != parent.CategoryID {
			t.Fatalf("board %d category %d differs from parent's %d", id, b.CategoryID, parent.CategoryID)
		}
	}
}

func rowsEqual(a, b []BoardRow) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].ParentID != b[i].ParentID ||
			a[i].Level != b[i].Level || a[i].Order != b[i].Order ||
			a[i].CategoryID != b[i].CategoryID {
			return false
		}
	}
	return true
}

package forest

import (
	"fmt"
	"sort"
)

type moveKind int

const (
	moveTop moveKind = iota
	moveBottom
	moveChildOf
	moveBefore
	moveAfter
)

// MoveTarget names a destination for Move and Create. Construct one with
// Top, Bottom, ChildOf, Before or After.
type MoveTarget struct {
	kind        moveKind
	categoryID  int64
	boardID     int64
	insertFirst bool
}

// Top places the board first among the root boards of a category.
func Top(categoryID int64) MoveTarget {
	return MoveTarget{kind: moveTop, categoryID: categoryID}
}

// Bottom places the board after everything else in a category.
func Bottom(categoryID int64) MoveTarget {
	return MoveTarget{kind: moveBottom, categoryID: categoryID}
}

// ChildOf places the board under a parent board, either as its first child
// or after the parent's existing subtree.
func ChildOf(parentBoardID int64, insertFirst bool) MoveTarget {
	return MoveTarget{kind: moveChildOf, boardID: parentBoardID, insertFirst: insertFirst}
}

// Before places the board immediately before a sibling.
func Before(siblingBoardID int64) MoveTarget {
	return MoveTarget{kind: moveBefore, boardID: siblingBoardID}
}

// After places the board after a sibling and the sibling's subtree.
func After(siblingBoardID int64) MoveTarget {
	return MoveTarget{kind: moveAfter, boardID: siblingBoardID}
}

// BoardSpec describes a board to insert. The id must already be allocated by
// the store; the forest never invents identities. A nil Target appends the
// board at the bottom of its category.
type BoardSpec struct {
	ID            int64
	Name          string
	Description   string
	CategoryID    int64
	Target        *MoveTarget
	AllowedGroups []int64
	DeniedGroups  []int64
	IsRedirect    bool
}

// placement is a resolved move destination in pre-mutation coordinates.
// insertAfter is the order value the moved rows slot in behind.
type placement struct {
	categoryID  int64
	parentID    int64
	level       int
	insertAfter int
}

func (f *Forest) resolveTarget(t MoveTarget) (placement, error) {
	switch t.kind {
	case moveTop, moveBottom:
		cat, ok := f.Categories[t.categoryID]
		if !ok {
			return placement{}, fmt.Errorf("category %d: %w", t.categoryID, ErrUnknownTarget)
		}
		p := placement{categoryID: cat.ID}
		min, max, any := f.orderBoundsIn(cat.ID)
		if !any {
			p.insertAfter = f.maxOrderBefore(cat.Order)
		} else if t.kind == moveTop {
			p.insertAfter = min - 1
		} else {
			p.insertAfter = max
		}
		return p, nil
	case moveChildOf:
		parent, ok := f.Boards[t.boardID]
		if !ok {
			return placement{}, fmt.Errorf("parent board %d: %w", t.boardID, ErrUnknownTarget)
		}
		p := placement{categoryID: parent.CategoryID, parentID: parent.ID, level: parent.Level + 1}
		if t.insertFirst || len(f.children[parent.ID]) == 0 {
			p.insertAfter = parent.Order
		} else {
			p.insertAfter = f.maxOrderIn(parent.ID)
		}
		return p, nil
	case moveBefore, moveAfter:
		sibling, ok := f.Boards[t.boardID]
		if !ok {
			return placement{}, fmt.Errorf("sibling board %d: %w", t.boardID, ErrUnknownTarget)
		}
		p := placement{categoryID: sibling.CategoryID, parentID: sibling.ParentID, level: sibling.Level}
		if t.kind == moveBefore {
			p.insertAfter = sibling.Order - 1
		} else {
			p.insertAfter = f.maxOrderIn(sibling.ID)
		}
		return p, nil
	}
	return placement{}, ErrUnknownTarget
}

// orderBoundsIn reports the smallest and largest order held by any board in
// the category, at any depth.
func (f *Forest) orderBoundsIn(categoryID int64) (min, max int, any bool) {
	for _, b := range f.Boards {
		if b.CategoryID != categoryID {
			continue
		}
		if !any || b.Order < min {
			min = b.Order
		}
		if !any || b.Order > max {
			max = b.Order
		}
		any = true
	}
	return min, max, any
}

// maxOrderBefore returns the highest order among boards in categories sorted
// before categoryOrder, used when a move targets an empty category.
func (f *Forest) maxOrderBefore(categoryOrder int) int {
	max := 0
	for _, b := range f.Boards {
		cat := f.Categories[b.CategoryID]
		if cat.Order < categoryOrder && b.Order > max {
			max = b.Order
		}
	}
	return max
}

// Move relocates a board and its whole subtree to the resolved target,
// renumbering the rest of the forest to open a contiguous order gap. It
// returns the changed rows; nothing is mutated when an error is returned.
func (f *Forest) Move(boardID int64, target MoveTarget) ([]RowUpdate, error) {
	b, ok := f.Boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %d: %w", boardID, ErrUnknownTarget)
	}
	place, err := f.resolveTarget(target)
	if err != nil {
		return nil, err
	}
	if place.parentID == boardID {
		return nil, fmt.Errorf("board %d under itself: %w", boardID, ErrCycle)
	}
	if place.parentID != 0 {
		for _, anc := range append(f.ancestors(place.parentID), place.parentID) {
			if anc == boardID {
				return nil, fmt.Errorf("board %d under its own descendant %d: %w", boardID, place.parentID, ErrCycle)
			}
		}
	}

	snap := f.snapshot()

	subtree := append([]int64{boardID}, f.DescendantsOf(boardID)...)
	inSubtree := make(map[int64]struct{}, len(subtree))
	for _, id := range subtree {
		inSubtree[id] = struct{}{}
	}

	// Open the gap against pre-move orders, then slot the subtree in.
	n := len(subtree)
	for _, other := range f.Boards {
		if _, moved := inSubtree[other.ID]; moved {
			continue
		}
		if other.Order > place.insertAfter {
			other.Order += n
		}
	}
	sort.Slice(subtree, func(i, j int) bool {
		return f.Boards[subtree[i]].Order < f.Boards[subtree[j]].Order
	})
	for i, id := range subtree {
		f.Boards[id].Order = place.insertAfter + 1 + i
	}

	levelDelta := place.level - b.Level
	categoryChanged := place.categoryID != b.CategoryID
	for _, id := range subtree {
		node := f.Boards[id]
		node.Level += levelDelta
		if categoryChanged {
			node.CategoryID = place.categoryID
		}
	}
	b.ParentID = place.parentID

	f.reindex()
	return f.diff(snap), nil
}

// Create inserts a new board described by spec, shifting later orders by one.
func (f *Forest) Create(spec BoardSpec) (Board, []RowUpdate, error) {
	if _, exists := f.Boards[spec.ID]; exists {
		return Board{}, nil, fmt.Errorf("board %d already exists: %w", spec.ID, ErrUnknownTarget)
	}
	target := Bottom(spec.CategoryID)
	if spec.Target != nil {
		target = *spec.Target
	}
	place, err := f.resolveTarget(target)
	if err != nil {
		return Board{}, nil, err
	}

	snap := f.snapshot()
	for _, other := range f.Boards {
		if other.Order > place.insertAfter {
			other.Order++
		}
	}
	b := &Board{
		ID:            spec.ID,
		Name:          spec.Name,
		Description:   spec.Description,
		CategoryID:    place.categoryID,
		ParentID:      place.parentID,
		Level:         place.level,
		Order:         place.insertAfter + 1,
		AllowedGroups: append([]int64(nil), spec.AllowedGroups...),
		DeniedGroups:  append([]int64(nil), spec.DeniedGroups...),
		IsRedirect:    spec.IsRedirect,
	}
	f.Boards[b.ID] = b
	f.reindex()
	return *b, f.diff(snap), nil
}

// Delete removes the named boards. With a nil reparent target every
// descendant dies with its ancestor; otherwise direct children of each
// removed board are re-leveled under the target before the removal.
func (f *Forest) Delete(boardIDs []int64, reparentTo *int64) ([]RowUpdate, error) {
	named := make(map[int64]struct{}, len(boardIDs))
	for _, id := range boardIDs {
		if _, ok := f.Boards[id]; !ok {
			return nil, fmt.Errorf("board %d: %w", id, ErrUnknownTarget)
		}
		named[id] = struct{}{}
	}

	var target *Board
	if reparentTo != nil {
		t, ok := f.Boards[*reparentTo]
		if !ok {
			return nil, fmt.Errorf("reparent target %d: %w", *reparentTo, ErrUnknownTarget)
		}
		if _, dies := named[t.ID]; dies {
			return nil, fmt.Errorf("reparent target %d is being deleted: %w", t.ID, ErrUnknownTarget)
		}
		for _, id := range boardIDs {
			for _, desc := range f.DescendantsOf(id) {
				if desc == t.ID {
					return nil, fmt.Errorf("reparent target %d inside deleted subtree: %w", t.ID, ErrCycle)
				}
			}
		}
		target = t
	}

	snap := f.snapshot()

	if target == nil {
		doomed := make(map[int64]struct{})
		for id := range named {
			doomed[id] = struct{}{}
			for _, desc := range f.DescendantsOf(id) {
				doomed[desc] = struct{}{}
			}
		}
		for id := range doomed {
			delete(f.Boards, id)
		}
	} else {
		for _, id := range boardIDs {
			for _, childID := range append([]int64(nil), f.children[id]...) {
				if _, alsoNamed := named[childID]; alsoNamed {
					continue
				}
				f.reparentSubtree(childID, target)
			}
			delete(f.Boards, id)
		}
	}

	f.reindex()
	return f.diff(snap), nil
}

// reparentSubtree hangs childID under target and shifts the levels of the
// whole subtree by the same delta, recursively.
func (f *Forest) reparentSubtree(childID int64, target *Board) {
	child := f.Boards[childID]
	delta := (target.Level + 1) - child.Level
	categoryChanged := target.CategoryID != child.CategoryID
	child.ParentID = target.ID
	for _, id := range append([]int64{childID}, f.DescendantsOf(childID)...) {
		node := f.Boards[id]
		node.Level += delta
		if categoryChanged {
			node.CategoryID = target.CategoryID
		}
	}
}

type structSnap struct {
	categoryID int64
	parentID   int64
	level      int
	order      int
}

func (f *Forest) snapshot() map[int64]structSnap {
	snap := make(map[int64]structSnap, len(f.Boards))
	for id, b := range f.Boards {
		snap[id] = structSnap{categoryID: b.CategoryID, parentID: b.ParentID, level: b.Level, order: b.Order}
	}
	return snap
}

// diff emits a RowUpdate for every board whose structural fields changed
// since the snapshot, plus inserts and deletes for boards that appeared or
// vanished. Output order is deterministic.
func (f *Forest) diff(snap map[int64]structSnap) []RowUpdate {
	var out []RowUpdate
	for id, b := range f.Boards {
		before, existed := snap[id]
		if !existed {
			out = append(out, RowUpdate{
				Op:          RowOpInsert,
				BoardID:     id,
				CategoryID:  b.CategoryID,
				ParentID:    b.ParentID,
				Level:       b.Level,
				Order:       b.Order,
				Name:        b.Name,
				Description: b.Description,
			})
			continue
		}
		if before.categoryID != b.CategoryID || before.parentID != b.ParentID ||
			before.level != b.Level || before.order != b.Order {
			out = append(out, RowUpdate{
				Op:         RowOpUpdate,
				BoardID:    id,
				CategoryID: b.CategoryID,
				ParentID:   b.ParentID,
				Level:      b.Level,
				Order:      b.Order,
			})
		}
	}
	for id := range snap {
		if _, alive := f.Boards[id]; !alive {
			out = append(out, RowUpdate{Op: RowOpDelete, BoardID: id})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Op != out[j].Op {
			return out[i].Op < out[j].Op
		}
		return out[i].BoardID < out[j].BoardID
	})
	return out
}

// reindex rebuilds the child lists and category root lists from board state,
// ordered by the global order sequence.
func (f *Forest) reindex() {
	f.children = make(map[int64][]int64)
	for _, cat := range f.Categories {
		cat.BoardIDs = nil
	}
	ids := make([]int64, 0, len(f.Boards))
	for id := range f.Boards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return f.Boards[ids[i]].Order < f.Boards[ids[j]].Order })
	for _, id := range ids {
		b := f.Boards[id]
		if b.ParentID == 0 {
			if cat := f.Categories[b.CategoryID]; cat != nil {
				cat.BoardIDs = append(cat.BoardIDs, id)
			}
		} else {
			f.children[b.ParentID] = append(f.children[b.ParentID], id)
		}
	}
	sort.Slice(f.CategoryOrder, func(i, j int) bool {
		return f.Categories[f.CategoryOrder[i]].Order < f.Categories[f.CategoryOrder[j]].Order
	})
}

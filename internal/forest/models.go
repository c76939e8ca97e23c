// Package forest holds the in-memory board/category hierarchy and the
// operations that build and restructure it. Persistence is delegated to a
// store; everything here is a pure transform over flat rows.
package forest

import (
	"errors"
	"fmt"
	"sort"
)

// Board is a single discussion board node. ParentID == 0 means the board sits
// at the root of its category, and then Level must be 0.
type Board struct {
	ID            int64
	Name          string
	Description   string
	CategoryID    int64
	ParentID      int64
	Level         int
	Order         int
	PostCount     int
	TopicCount    int
	AllowedGroups []int64
	DeniedGroups  []int64
	ModeratorIDs  []int64
	IsRedirect    bool
}

// Category is a top-level grouping that owns root boards in display order.
type Category struct {
	ID          int64
	Name        string
	Order       int
	CanCollapse bool
	BoardIDs    []int64
}

// BoardRow is the flat persisted shape a board travels in between the store
// and the tree. Category fields are denormalized onto every row so a single
// query can feed Build.
type BoardRow struct {
	ID                  int64
	Name                string
	Description         string
	CategoryID          int64
	CategoryName        string
	CategoryOrder       int
	CategoryCanCollapse bool
	ParentID            int64
	Level               int
	Order               int
	PostCount           int
	TopicCount          int
	AllowedGroups       []int64
	DeniedGroups        []int64
	ModeratorIDs        []int64
	IsRedirect          bool
}

// RowOp discriminates structural row changes produced by mutations.
type RowOp int

const (
	RowOpUpdate RowOp = iota
	RowOpInsert
	RowOpDelete
)

// RowUpdate is one persisted change. Updates and inserts carry the full new
// structural field values; deletes only need the board id. A batch returned
// by a mutation must be applied in a single transaction: partial application
// leaves duplicate or gapped order values.
type RowUpdate struct {
	Op          RowOp
	BoardID     int64
	CategoryID  int64
	ParentID    int64
	Level       int
	Order       int
	Name        string
	Description string
}

// LevelFix records a stored level that disagreed with the level computed from
// the parent chain during Build. The builder corrects the in-memory node but
// never writes; the caller decides whether to persist the correction.
type LevelFix struct {
	BoardID int64
	Level   int
}

var (
	// ErrOrphanBoard means a row referenced a parent that was never seen,
	// so either the parent row is missing or the input sort was violated.
	ErrOrphanBoard = errors.New("orphan board")
	// ErrCycle means a move would make a board its own ancestor.
	ErrCycle = errors.New("move would create a cycle")
	// ErrUnknownTarget means a mutation referenced a board or category id
	// that does not exist in the forest.
	ErrUnknownTarget = errors.New("unknown target")
)

// OrphanBoardError carries the ids involved in an ErrOrphanBoard failure.
type OrphanBoardError struct {
	BoardID  int64
	ParentID int64
}

func (e *OrphanBoardError) Error() string {
	return fmt.Sprintf("orphan board %d: parent %d not found", e.BoardID, e.ParentID)
}

func (e *OrphanBoardError) Unwrap() error { return ErrOrphanBoard }

// Forest is the complete set of categories and boards plus the child index
// every mutation keeps consistent.
type Forest struct {
	Categories    map[int64]*Category
	CategoryOrder []int64
	Boards        map[int64]*Board
	children      map[int64][]int64
}

// NewForest returns an empty forest.
func NewForest() *Forest {
	return &Forest{
		Categories: make(map[int64]*Category),
		Boards:     make(map[int64]*Board),
		children:   make(map[int64][]int64),
	}
}

// ChildrenOf returns the ids of the direct children of a board, in display
// order. Root boards are reached through their category instead.
func (f *Forest) ChildrenOf(parentID int64) []int64 {
	return f.children[parentID]
}

// DescendantsOf returns every board id below boardID, transitively, in
// pre-order.
func (f *Forest) DescendantsOf(boardID int64) []int64 {
	var out []int64
	var walk func(id int64)
	walk = func(id int64) {
		for _, child := range f.children[id] {
			out = append(out, child)
			walk(child)
		}
	}
	walk(boardID)
	return out
}

// ancestors walks the parent chain from boardID upward, excluding boardID.
func (f *Forest) ancestors(boardID int64) []int64 {
	var out []int64
	for b := f.Boards[boardID]; b != nil && b.ParentID != 0; b = f.Boards[b.ParentID] {
		out = append(out, b.ParentID)
	}
	return out
}

// maxOrderIn returns the highest order held by boardID or any descendant.
func (f *Forest) maxOrderIn(boardID int64) int {
	max := f.Boards[boardID].Order
	for _, id := range f.DescendantsOf(boardID) {
		if o := f.Boards[id].Order; o > max {
			max = o
		}
	}
	return max
}

// removeChild drops id from its parent's (or category's) child list.
func (f *Forest) removeChild(b *Board) {
	if b.ParentID != 0 {
		f.children[b.ParentID] = removeID(f.children[b.ParentID], b.ID)
		return
	}
	if cat := f.Categories[b.CategoryID]; cat != nil {
		cat.BoardIDs = removeID(cat.BoardIDs, b.ID)
	}
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Rows serializes the forest back into the flat row shape, sorted by
// (categoryOrder, level, boardOrder). Building the result again yields an
// identical forest.
func (f *Forest) Rows() []BoardRow {
	rows := make([]BoardRow, 0, len(f.Boards))
	for _, b := range f.Boards {
		cat := f.Categories[b.CategoryID]
		rows = append(rows, BoardRow{
			ID:                  b.ID,
			Name:                b.Name,
			Description:         b.Description,
			CategoryID:          b.CategoryID,
			CategoryName:        cat.Name,
			CategoryOrder:       cat.Order,
			CategoryCanCollapse: cat.CanCollapse,
			ParentID:            b.ParentID,
			Level:               b.Level,
			Order:               b.Order,
			PostCount:           b.PostCount,
			TopicCount:          b.TopicCount,
			AllowedGroups:       append([]int64(nil), b.AllowedGroups...),
			DeniedGroups:        append([]int64(nil), b.DeniedGroups...),
			ModeratorIDs:        append([]int64(nil), b.ModeratorIDs...),
			IsRedirect:          b.IsRedirect,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CategoryOrder != rows[j].CategoryOrder {
			return rows[i].CategoryOrder < rows[j].CategoryOrder
		}
		if rows[i].Level != rows[j].Level {
			return rows[i].Level < rows[j].Level
		}
		return rows[i].Order < rows[j].Order
	})
	return rows
}

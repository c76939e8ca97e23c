// Package listing turns a visibility-filtered stream of board rows into the
// nested structure the board index displays, rolling up statistics in one
// forward pass.
package listing

import (
	"context"
	"time"

	"palaver/internal/forest"
)

// LastPost is the newest-post fact carried by a board row.
type LastPost struct {
	PosterID   int64     `json:"posterId"`
	PosterName string    `json:"posterName"`
	Subject    string    `json:"subject"`
	Time       time.Time `json:"time"`
	BoardID    int64     `json:"boardId"`
	BoardName  string    `json:"boardName"`
}

// BoardFactRow is a board row annotated with live statistics. Rows handed to
// Aggregate are already filtered to what the current user may see and sorted
// by (categoryOrder, boardOrder).
type BoardFactRow struct {
	forest.BoardRow
	LastPost LastPost
	IsRead   bool
}

// ModeratorInfo identifies one moderator of a board.
type ModeratorInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ModeratorSource supplies moderator assignments for a batch of boards in a
// single call.
type ModeratorSource interface {
	ModeratorsOf(ctx context.Context, boardIDs []int64) (map[int64][]ModeratorInfo, error)
}

// DisplayBoard is one rendered board node. Children is keyed by board id;
// ChildIDs preserves display order. Boards nested deeper than one level are
// flattened into the owning top-level child's Children map but stay
// addressable through DisplayForest.Board.
type DisplayBoard struct {
	ID             int64
	Name           string
	Description    string
	Level          int
	IsRedirect     bool
	PostCount      int
	TopicCount     int
	New            bool
	ChildrenNew    bool
	LastPost       LastPost
	Children       map[int64]*DisplayBoard
	ChildIDs       []int64
	Moderators     []ModeratorInfo
	LinkModerators []string
}

// DisplayCategory is one rendered category with its root boards in order.
type DisplayCategory struct {
	ID          int64
	Name        string
	CanCollapse bool
	New         bool
	Boards      []*DisplayBoard
}

// DisplayForest is the aggregation result. LatestPost aliases the LastPost
// field of the display node it came from, so late updates to that node stay
// visible through the pointer.
type DisplayForest struct {
	Categories    []*DisplayCategory
	BoardCategory map[int64]int64
	LatestPost    *LastPost

	byID map[int64]*DisplayBoard
}

// Board returns the display node for a board id at any depth.
func (d *DisplayForest) Board(id int64) (*DisplayBoard, bool) {
	b, ok := d.byID[id]
	return b, ok
}

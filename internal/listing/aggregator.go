package listing

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// AggregateOptions tune one aggregation pass.
type AggregateOptions struct {
	// CountChildPosts rolls every descendant's post and topic counts into
	// the boards above it, so a top-level board shows its whole subtree.
	CountChildPosts bool
	// IgnoredBoards are excluded from the global latest-post tracker.
	IgnoredBoards map[int64]struct{}
}

// Aggregator builds display forests. Moderator assignments come from a
// single batched fetch after the main scan.
type Aggregator struct {
	mods ModeratorSource
	log  *zap.Logger
}

// NewAggregator wires the moderator source. log may be nil.
func NewAggregator(mods ModeratorSource, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{mods: mods, log: log}
}

// rollTarget remembers, for a board nested deeper than one level, the
// top-level ancestor and the direct child of that ancestor that own its
// statistics.
type rollTarget struct {
	root   *DisplayBoard
	parent *DisplayBoard
}

// Aggregate scans the rows once, building one display node per row and
// attaching it by parent. Rows arrive grouped by category and in global
// order, so a parent always precedes its subtree. No backtracking over the
// dataset: a grandchild resolves its ancestors through a per-category
// parentMap that is filled lazily on first sight and reused by siblings.
func (a *Aggregator) Aggregate(ctx context.Context, rows []BoardFactRow, opts AggregateOptions) DisplayForest {
	out := DisplayForest{
		BoardCategory: make(map[int64]int64),
		byID:          make(map[int64]*DisplayBoard),
	}

	var (
		current      *DisplayCategory
		currentRoots map[int64]*DisplayBoard
		parentMap    map[int64]rollTarget
	)

	for i := range rows {
		row := &rows[i]

		if current == nil || current.ID != row.CategoryID {
			current = &DisplayCategory{
				ID:          row.CategoryID,
				Name:        row.CategoryName,
				CanCollapse: row.CategoryCanCollapse,
			}
			out.Categories = append(out.Categories, current)
			currentRoots = make(map[int64]*DisplayBoard)
			parentMap = make(map[int64]rollTarget)
		}

		node := &DisplayBoard{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			Level:       row.Level,
			IsRedirect:  row.IsRedirect,
			PostCount:   row.PostCount,
			TopicCount:  row.TopicCount,
			LastPost:    row.LastPost,
			Children:    make(map[int64]*DisplayBoard),
		}
		// Redirect boards forward elsewhere and never count as unread.
		node.New = !row.IsRead && !row.IsRedirect

		switch {
		case row.ParentID == 0:
			current.Boards = append(current.Boards, node)
			currentRoots[node.ID] = node

		default:
			if parent, ok := currentRoots[row.ParentID]; ok {
				attachChild(parent, node)
				// Redirect boards forward their traffic elsewhere; their
				// stored counts never roll up.
				if opts.CountChildPosts && !row.IsRedirect {
					parent.PostCount += row.PostCount
					parent.TopicCount += row.TopicCount
				}
			} else {
				target, ok := parentMap[row.ParentID]
				if !ok {
					target, ok = scanForParent(currentRoots, row.ParentID)
					if !ok {
						// An ancestor was filtered out; the row cannot be
						// placed and is dropped like its ancestor was.
						a.log.Debug("dropping row with unplaceable parent",
							zap.Int64("board", row.ID), zap.Int64("parent", row.ParentID))
						continue
					}
					parentMap[row.ParentID] = target
				}
				// Children of this row resolve to the same owners without
				// rescanning.
				parentMap[row.ID] = target

				attachChild(target.parent, node)
				if opts.CountChildPosts && !row.IsRedirect {
					target.root.PostCount += row.PostCount
					target.root.TopicCount += row.TopicCount
					target.parent.PostCount += row.PostCount
					target.parent.TopicCount += row.TopicCount
				}
			}
		}

		out.byID[node.ID] = node
		out.BoardCategory[node.ID] = current.ID
		if node.New {
			current.New = true
		}

		if _, skip := opts.IgnoredBoards[row.ID]; !skip {
			if out.LatestPost == nil || row.LastPost.Time.After(out.LatestPost.Time) {
				out.LatestPost = &node.LastPost
			}
		}
	}

	a.attachModerators(ctx, &out)
	return out
}

// attachChild hangs node under parent and propagates the children-new flag.
// The flag is only ever set, never cleared, and is independent of the
// parent's own new status.
func attachChild(parent *DisplayBoard, node *DisplayBoard) {
	if _, seen := parent.Children[node.ID]; seen {
		return // first sighting wins
	}
	parent.Children[node.ID] = node
	parent.ChildIDs = append(parent.ChildIDs, node.ID)
	if node.New {
		parent.ChildrenNew = true
	}
}

// scanForParent is the lazy fallback for the first grandchild in a category:
// one scan over the tracked roots for the node whose children contain the
// wanted parent.
func scanForParent(roots map[int64]*DisplayBoard, parentID int64) (rollTarget, bool) {
	for _, root := range roots {
		if child, ok := root.Children[parentID]; ok {
			return rollTarget{root: root, parent: child}, true
		}
	}
	return rollTarget{}, false
}

// attachModerators is the second, smaller pass: one batched fetch for every
// board seen in the scan, attached through the id index.
func (a *Aggregator) attachModerators(ctx context.Context, out *DisplayForest) {
	if a.mods == nil || len(out.byID) == 0 {
		return
	}
	ids := make([]int64, 0, len(out.byID))
	for id := range out.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	assignments, err := a.mods.ModeratorsOf(ctx, ids)
	if err != nil {
		a.log.Warn("moderator fetch failed, boards shown without moderators", zap.Error(err))
		return
	}
	for id, mods := range assignments {
		node, ok := out.byID[id]
		if !ok {
			continue
		}
		node.Moderators = mods
		node.LinkModerators = make([]string, len(mods))
		for i, m := range mods {
			node.LinkModerators[i] = m.Name
		}
	}
}

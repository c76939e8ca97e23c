// Package boardsvc orchestrates the board hierarchy: it loads rows from the
// store, runs tree operations in memory, persists the resulting batch and
// advances the settings version so cached visibility decisions go stale.
package boardsvc

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"palaver/internal/access"
	"palaver/internal/forest"
	"palaver/internal/listing"
	"palaver/internal/settings"
)

// BoardStore is the persistence surface the service needs. Both the Postgres
// and the in-memory store satisfy it.
type BoardStore interface {
	FetchAllRows(ctx context.Context) ([]forest.BoardRow, error)
	FetchFactRows(ctx context.Context) ([]listing.BoardFactRow, error)
	ApplyUpdates(ctx context.Context, updates []forest.RowUpdate) error
	NextBoardID(ctx context.Context) (int64, error)
	NextCategoryID(ctx context.Context) (int64, error)
	InsertCategory(ctx context.Context, cat forest.Category) error
	ModeratorsOf(ctx context.Context, boardIDs []int64) (map[int64][]listing.ModeratorInfo, error)
}

type Service struct {
	store   BoardStore
	version settings.Version
	agg     *listing.Aggregator
	log     *zap.Logger
}

func New(store BoardStore, version settings.Version, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		version: version,
		agg:     listing.NewAggregator(store, log),
		log:     log,
	}
}

// Forest loads and builds the current tree. Level corrections discovered
// during the build are written back before the forest is returned, so one
// load heals drift left by older tooling.
func (s *Service) Forest(ctx context.Context) (*forest.Forest, error) {
	rows, err := s.store.FetchAllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load board rows: %w", err)
	}
	f, fixes, err := forest.Build(rows)
	if err != nil {
		return nil, fmt.Errorf("build forest: %w", err)
	}
	if len(fixes) > 0 {
		updates := make([]forest.RowUpdate, 0, len(fixes))
		for _, fix := range fixes {
			b := f.Boards[fix.BoardID]
			updates = append(updates, forest.RowUpdate{
				Op:         forest.RowOpUpdate,
				BoardID:    b.ID,
				CategoryID: b.CategoryID,
				ParentID:   b.ParentID,
				Level:      b.Level,
				Order:      b.Order,
			})
		}
		if err := s.store.ApplyUpdates(ctx, updates); err != nil {
			return nil, fmt.Errorf("persist level fixes: %w", err)
		}
		s.log.Info("corrected stored board levels", zap.Int("count", len(fixes)))
	}
	return f, nil
}

// MoveBoard relocates a board and its subtree, persisting the whole
// renumbering atomically.
func (s *Service) MoveBoard(ctx context.Context, boardID int64, target forest.MoveTarget) error {
	f, err := s.Forest(ctx)
	if err != nil {
		return err
	}
	updates, err := f.Move(boardID, target)
	if err != nil {
		return err
	}
	return s.commit(ctx, updates)
}

// CreateBoard allocates an id, inserts the board at the given target and
// returns the created node.
func (s *Service) CreateBoard(ctx context.Context, spec forest.BoardSpec) (forest.Board, error) {
	f, err := s.Forest(ctx)
	if err != nil {
		return forest.Board{}, err
	}
	if spec.ID == 0 {
		id, err := s.store.NextBoardID(ctx)
		if err != nil {
			return forest.Board{}, fmt.Errorf("allocate board id: %w", err)
		}
		spec.ID = id
	}
	b, updates, err := f.Create(spec)
	if err != nil {
		return forest.Board{}, err
	}
	if err := s.commit(ctx, updates); err != nil {
		return forest.Board{}, err
	}
	return b, nil
}

// CreateCategory allocates an id and persists an empty category. Boards land
// in it through CreateBoard or MoveBoard.
func (s *Service) CreateCategory(ctx context.Context, name string, order int, canCollapse bool) (forest.Category, error) {
	id, err := s.store.NextCategoryID(ctx)
	if err != nil {
		return forest.Category{}, fmt.Errorf("allocate category id: %w", err)
	}
	cat := forest.Category{ID: id, Name: name, Order: order, CanCollapse: canCollapse}
	if err := s.store.InsertCategory(ctx, cat); err != nil {
		return forest.Category{}, fmt.Errorf("persist category: %w", err)
	}
	s.version.Bump(ctx)
	return cat, nil
}

// DeleteBoards removes boards, optionally re-homing their children under
// reparentTo.
func (s *Service) DeleteBoards(ctx context.Context, boardIDs []int64, reparentTo *int64) error {
	f, err := s.Forest(ctx)
	if err != nil {
		return err
	}
	updates, err := f.Delete(boardIDs, reparentTo)
	if err != nil {
		return err
	}
	return s.commit(ctx, updates)
}

// Index produces the rendered board index for one user: fact rows filtered by
// the grant, then aggregated.
func (s *Service) Index(ctx context.Context, grant access.Grant, opts listing.AggregateOptions) (listing.DisplayForest, error) {
	rows, err := s.store.FetchFactRows(ctx)
	if err != nil {
		return listing.DisplayForest{}, fmt.Errorf("load board facts: %w", err)
	}
	visible := rows[:0]
	for i := range rows {
		b := forest.Board{
			ID:            rows[i].ID,
			AllowedGroups: rows[i].AllowedGroups,
			DeniedGroups:  rows[i].DeniedGroups,
		}
		if grant.CanSee(&b) {
			visible = append(visible, rows[i])
		}
	}
	return s.agg.Aggregate(ctx, visible, opts), nil
}

func (s *Service) commit(ctx context.Context, updates []forest.RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := s.store.ApplyUpdates(ctx, updates); err != nil {
		return fmt.Errorf("persist board updates: %w", err)
	}
	s.version.Bump(ctx)
	return nil
}

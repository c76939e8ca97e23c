package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"

	"palaver/internal/forest"
	"palaver/internal/listing"
)

// Memory is an in-process BoardStore with the same contract as
// PostgresStore. Ids are allocated from a snowflake node so inserts never
// collide across restarts of the same tooling process.
type Memory struct {
	mu         sync.RWMutex
	rows       map[int64]forest.BoardRow
	cats       map[int64]forest.Category
	facts      map[int64]listing.LastPost
	read       map[int64]bool
	moderators map[int64][]listing.ModeratorInfo
	node       *snowflake.Node
}

// NewMemory creates an empty store. nodeID distinguishes concurrent
// allocators; tooling normally passes 0.
func NewMemory(nodeID int64) (*Memory, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &Memory{
		rows:       make(map[int64]forest.BoardRow),
		cats:       make(map[int64]forest.Category),
		facts:      make(map[int64]listing.LastPost),
		read:       make(map[int64]bool),
		moderators: make(map[int64][]listing.ModeratorInfo),
		node:       node,
	}, nil
}

// Seed replaces the stored rows.
func (m *Memory) Seed(rows []forest.BoardRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[int64]forest.BoardRow, len(rows))
	for _, row := range rows {
		m.rows[row.ID] = row
	}
}

// SetFact attaches a last-post fact and read flag to a board.
func (m *Memory) SetFact(boardID int64, post listing.LastPost, isRead bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[boardID] = post
	m.read[boardID] = isRead
}

// SetModerators replaces the moderator assignments of a board.
func (m *Memory) SetModerators(boardID int64, mods []listing.ModeratorInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moderators[boardID] = append([]listing.ModeratorInfo(nil), mods...)
}

func (m *Memory) FetchAllRows(context.Context) ([]forest.BoardRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]forest.BoardRow, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryOrder != out[j].CategoryOrder {
			return out[i].CategoryOrder < out[j].CategoryOrder
		}
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (m *Memory) FetchFactRows(context.Context) ([]listing.BoardFactRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]listing.BoardFactRow, 0, len(m.rows))
	for _, row := range m.rows {
		fact := listing.BoardFactRow{BoardRow: row, LastPost: m.facts[row.ID], IsRead: m.read[row.ID]}
		fact.LastPost.BoardID = row.ID
		fact.LastPost.BoardName = row.Name
		out = append(out, fact)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryOrder != out[j].CategoryOrder {
			return out[i].CategoryOrder < out[j].CategoryOrder
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

// ApplyUpdates applies the whole batch under one lock, mirroring the
// transactional contract of the Postgres backend.
func (m *Memory) ApplyUpdates(_ context.Context, updates []forest.RowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		switch u.Op {
		case forest.RowOpUpdate:
			row, ok := m.rows[u.BoardID]
			if !ok {
				return fmt.Errorf("update unknown board %d", u.BoardID)
			}
			row.CategoryID = u.CategoryID
			row.ParentID = u.ParentID
			row.Level = u.Level
			row.Order = u.Order
			m.rows[u.BoardID] = row
		case forest.RowOpInsert:
			m.rows[u.BoardID] = forest.BoardRow{
				ID:          u.BoardID,
				Name:        u.Name,
				Description: u.Description,
				CategoryID:  u.CategoryID,
				ParentID:    u.ParentID,
				Level:       u.Level,
				Order:       u.Order,
			}
		case forest.RowOpDelete:
			delete(m.rows, u.BoardID)
			delete(m.facts, u.BoardID)
			delete(m.moderators, u.BoardID)
		}
	}
	m.syncCategoryFields()
	return nil
}

// InsertCategory registers a category so later board rows can denormalize
// its fields.
func (m *Memory) InsertCategory(_ context.Context, cat forest.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cats[cat.ID] = cat
	return nil
}

// syncCategoryFields copies category denormalization onto rows that moved or
// were inserted without it, from registered categories or an existing row of
// the same category.
func (m *Memory) syncCategoryFields() {
	type catInfo struct {
		name        string
		order       int
		canCollapse bool
	}
	cats := make(map[int64]catInfo)
	for id, cat := range m.cats {
		cats[id] = catInfo{cat.Name, cat.Order, cat.CanCollapse}
	}
	for _, row := range m.rows {
		if _, known := cats[row.CategoryID]; !known && row.CategoryName != "" {
			cats[row.CategoryID] = catInfo{row.CategoryName, row.CategoryOrder, row.CategoryCanCollapse}
		}
	}
	for id, row := range m.rows {
		if info, ok := cats[row.CategoryID]; ok && row.CategoryName != info.name {
			row.CategoryName = info.name
			row.CategoryOrder = info.order
			row.CategoryCanCollapse = info.canCollapse
			m.rows[id] = row
		}
	}
}

func (m *Memory) NextBoardID(context.Context) (int64, error) {
	return m.node.Generate().Int64(), nil
}

func (m *Memory) NextCategoryID(context.Context) (int64, error) {
	return m.node.Generate().Int64(), nil
}

func (m *Memory) ModeratorsOf(_ context.Context, boardIDs []int64) (map[int64][]listing.ModeratorInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64][]listing.ModeratorInfo)
	for _, id := range boardIDs {
		if mods, ok := m.moderators[id]; ok {
			out[id] = append([]listing.ModeratorInfo(nil), mods...)
		}
	}
	return out, nil
}

// Package store persists the board hierarchy. PostgresStore is the
// production backend; Memory backs tests and offline tooling.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"palaver/internal/forest"
	"palaver/internal/listing"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// FetchAllRows returns every board row pre-sorted the way Build expects,
// with moderator ids merged in from a second query.
func (s *PostgresStore) FetchAllRows(ctx context.Context) ([]forest.BoardRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.name, b.description, b.category_id, c.name, c.cat_order, c.can_collapse,
		       b.parent_id, b.child_level, b.board_order, b.post_count, b.topic_count,
		       b.allowed_groups, b.denied_groups, b.is_redirect
		FROM boards b
		JOIN categories c ON c.id = b.category_id
		ORDER BY c.cat_order, b.child_level, b.board_order
	`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]forest.BoardRow, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			item            forest.BoardRow
			allowed, denied string
		)
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.CategoryID, &item.CategoryName,
			&item.CategoryOrder, &item.CategoryCanCollapse, &item.ParentID, &item.Level,
			&item.Order, &item.PostCount, &item.TopicCount, &allowed, &denied, &item.IsRedirect,
		); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		item.AllowedGroups = parseIDList(allowed)
		item.DeniedGroups = parseIDList(denied)
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}

	modRows, err := s.db.QueryContext(ctx, `SELECT board_id, user_id FROM board_moderators ORDER BY board_id, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list moderators: %w", err)
	}
	defer modRows.Close()
	for modRows.Next() {
		var boardID, userID int64
		if err := modRows.Scan(&boardID, &userID); err != nil {
			return nil, fmt.Errorf("scan moderator: %w", err)
		}
		if i, ok := index[boardID]; ok {
			items[i].ModeratorIDs = append(items[i].ModeratorIDs, userID)
		}
	}
	if err := modRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderators: %w", err)
	}

	return items, nil
}

// FetchFactRows returns rows sorted for aggregation, annotated with each
// board's last-post fact. Per-user read state is merged in by the caller.
func (s *PostgresStore) FetchFactRows(ctx context.Context) ([]listing.BoardFactRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.name, b.description, b.category_id, c.name, c.cat_order, c.can_collapse,
		       b.parent_id, b.child_level, b.board_order, b.post_count, b.topic_count,
		       b.allowed_groups, b.denied_groups, b.is_redirect,
		       b.last_poster_id, b.last_poster_name, b.last_post_subject, b.last_post_at
		FROM boards b
		JOIN categories c ON c.id = b.category_id
		ORDER BY c.cat_order, b.board_order
	`)
	if err != nil {
		return nil, fmt.Errorf("list board facts: %w", err)
	}
	defer rows.Close()

	items := make([]listing.BoardFactRow, 0)
	for rows.Next() {
		var (
			item            listing.BoardFactRow
			allowed, denied string
			lastPostAt      sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.CategoryID, &item.CategoryName,
			&item.CategoryOrder, &item.CategoryCanCollapse, &item.ParentID, &item.Level,
			&item.Order, &item.PostCount, &item.TopicCount, &allowed, &denied, &item.IsRedirect,
			&item.LastPost.PosterID, &item.LastPost.PosterName,
			&item.LastPost.Subject, &lastPostAt,
		); err != nil {
			return nil, fmt.Errorf("scan board facts: %w", err)
		}
		item.AllowedGroups = parseIDList(allowed)
		item.DeniedGroups = parseIDList(denied)
		if lastPostAt.Valid {
			item.LastPost.Time = lastPostAt.Time
		}
		item.LastPost.BoardID = item.ID
		item.LastPost.BoardName = item.Name
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board facts: %w", err)
	}
	return items, nil
}

// ApplyUpdates writes one mutation batch inside a single transaction, so a
// failure leaves the stored order sequence untouched.
func (s *PostgresStore) ApplyUpdates(ctx context.Context, updates []forest.RowUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin updates: %w", err)
	}
	for _, u := range updates {
		switch u.Op {
		case forest.RowOpUpdate:
			_, err = tx.ExecContext(ctx, `
				UPDATE boards SET category_id=$2, parent_id=$3, child_level=$4, board_order=$5
				WHERE id=$1
			`, u.BoardID, u.CategoryID, u.ParentID, u.Level, u.Order)
		case forest.RowOpInsert:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO boards (id, category_id, parent_id, child_level, board_order, name, description)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, u.BoardID, u.CategoryID, u.ParentID, u.Level, u.Order, u.Name, u.Description)
		case forest.RowOpDelete:
			_, err = tx.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, u.BoardID)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply update for board %d: %w", u.BoardID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit updates: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextBoardID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('boards_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next board id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) NextCategoryID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('categories_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next category id: %w", err)
	}
	return id, nil
}

// ModeratorsOf fetches moderator assignments for a batch of boards in one
// query. The id list is numeric and formatted directly into the statement.
func (s *PostgresStore) ModeratorsOf(ctx context.Context, boardIDs []int64) (map[int64][]listing.ModeratorInfo, error) {
	out := make(map[int64][]listing.ModeratorInfo)
	if len(boardIDs) == 0 {
		return out, nil
	}
	parts := make([]string, len(boardIDs))
	for i, id := range boardIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	query := fmt.Sprintf(`
		SELECT board_id, user_id, user_name
		FROM board_moderators
		WHERE board_id IN (%s)
		ORDER BY board_id, user_name
	`, strings.Join(parts, ","))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list board moderators: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			boardID int64
			info    listing.ModeratorInfo
		)
		if err := rows.Scan(&boardID, &info.ID, &info.Name); err != nil {
			return nil, fmt.Errorf("scan board moderator: %w", err)
		}
		out[boardID] = append(out[boardID], info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board moderators: %w", err)
	}
	return out, nil
}

// UpdateLastPost refreshes the denormalized last-post columns on a board.
func (s *PostgresStore) UpdateLastPost(ctx context.Context, boardID int64, post listing.LastPost) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE boards
		SET last_poster_id=$2, last_poster_name=$3, last_post_subject=$4, last_post_at=$5
		WHERE id=$1
	`, boardID, post.PosterID, post.PosterName, post.Subject, post.Time)
	if err != nil {
		return fmt.Errorf("update last post: %w", err)
	}
	return nil
}

// InsertCategory creates a category row with an explicit id.
func (s *PostgresStore) InsertCategory(ctx context.Context, cat forest.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, cat_order, can_collapse)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, cat.ID, cat.Name, cat.Order, cat.CanCollapse)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// parseIDList decodes the comma-separated group id columns. Blank and
// malformed entries are skipped rather than surfaced: a bad id can only make
// a board less visible, never more.
func parseIDList(value string) []int64 {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// joinIDList encodes group ids for the comma-separated columns.
func joinIDList(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// SeedBoard inserts a fully specified board row, for bootstrap and tests
// against a real database.
func (s *PostgresStore) SeedBoard(ctx context.Context, row forest.BoardRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (id, category_id, parent_id, child_level, board_order, name, description,
		                    post_count, topic_count, allowed_groups, denied_groups, is_redirect)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, row.ID, row.CategoryID, row.ParentID, row.Level, row.Order, row.Name, row.Description,
		row.PostCount, row.TopicCount, joinIDList(row.AllowedGroups), joinIDList(row.DeniedGroups), row.IsRedirect)
	if err != nil {
		return fmt.Errorf("seed board: %w", err)
	}
	return nil
}

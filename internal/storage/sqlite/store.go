// Package sqlite provides the SQLite-backed space store and chat log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Tyrowin/gospace/internal/storage"
	"github.com/Tyrowin/gospace/internal/storage/sqlite/migrations"
	"github.com/Tyrowin/gospace/internal/storage/sqlitemigrate"
)

// Store persists spaces, bans and chat messages in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.SpaceStore = (*Store)(nil)
	_ storage.ChatLog    = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSpace inserts a new space.
func (s *Store) CreateSpace(ctx context.Context, space storage.Space) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(space.ID)
	if id == "" {
		return fmt.Errorf("space id is required")
	}
	if space.Width <= 0 || space.Height <= 0 {
		return fmt.Errorf("space dimensions must be positive")
	}
	createdAt := space.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO spaces (id, name, width, height, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(space.Name), space.Width, space.Height, toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create space: %w", err)
	}
	return nil
}

// FindSpace returns a space and its ban set.
func (s *Store) FindSpace(ctx context.Context, spaceID string) (storage.Space, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Space{}, err
	}
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return storage.Space{}, storage.ErrNotFound
	}

	var (
		space     storage.Space
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, width, height, created_at FROM spaces WHERE id = ?`, spaceID,
	).Scan(&space.ID, &space.Name, &space.Width, &space.Height, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Space{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Space{}, fmt.Errorf("get space: %w", err)
	}
	space.CreatedAt = fromMillis(createdAt)

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT user_id FROM space_bans WHERE space_id = ?`, spaceID)
	if err != nil {
		return storage.Space{}, fmt.Errorf("list space bans: %w", err)
	}
	defer rows.Close()

	space.Banned = make(map[string]struct{})
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return storage.Space{}, fmt.Errorf("scan space ban: %w", err)
		}
		space.Banned[userID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return storage.Space{}, fmt.Errorf("iterate space bans: %w", err)
	}
	return space, nil
}

// AppendBanned adds userID to the space's ban list. Banning twice is a no-op.
func (s *Store) AppendBanned(ctx context.Context, spaceID, userID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(spaceID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("space id and user id are required")
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO space_bans (space_id, user_id, banned_at)
		 SELECT id, ?, ? FROM spaces WHERE id = ?`,
		userID, toMillis(time.Now()), spaceID,
	)
	if err != nil {
		return fmt.Errorf("append ban: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.FindSpace(ctx, spaceID); errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
	}
	return nil
}

// AppendChat appends one chat message.
func (s *Store) AppendChat(ctx context.Context, msg storage.ChatMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO chat_messages (space_id, user_id, message, sent_at) VALUES (?, ?, ?, ?)`,
		msg.SpaceID, msg.UserID, msg.Message, toMillis(sentAt),
	)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListChat returns up to limit most recent messages for a space, oldest first.
func (s *Store) ListChat(ctx context.Context, spaceID string, limit int) ([]storage.ChatMessage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT space_id, user_id, message, sent_at FROM (
		   SELECT id, space_id, user_id, message, sent_at FROM chat_messages
		   WHERE space_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		spaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var out []storage.ChatMessage
	for rows.Next() {
		var (
			msg    storage.ChatMessage
			sentAt int64
		)
		if err := rows.Scan(&msg.SpaceID, &msg.UserID, &msg.Message, &sentAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.SentAt = fromMillis(sentAt)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}

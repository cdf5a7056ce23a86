package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ChronoCoders/wordstream/internal/models"
	_ "modernc.org/sqlite" // Register sqlite driver
)

const defaultHistoryLimit = 100

// ErrNotFound is returned when no history row matches.
var ErrNotFound = errors.New("session record not found")

// Store persists session connect/disconnect history.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// sqlite allows one writer; a single connection keeps :memory: databases shared too
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			remote_addr TEXT NOT NULL,
			connected_at DATETIME NOT NULL,
			disconnected_at DATETIME,
			words_taken INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_connected_at ON sessions(connected_at);`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// RecordConnect inserts an open history row for a new session.
func (s *Store) RecordConnect(ctx context.Context, id, remoteAddr string, at time.Time) error {
	query := `INSERT INTO sessions (id, remote_addr, connected_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, remoteAddr, at.UTC()); err != nil {
		return fmt.Errorf("record connect %s: %w", id, err)
	}
	return nil
}

// RecordDisconnect closes the history row of a session.
func (s *Store) RecordDisconnect(ctx context.Context, id string, at time.Time, wordsTaken int64) error {
	query := `UPDATE sessions SET disconnected_at = ?, words_taken = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, at.UTC(), wordsTaken, id)
	if err != nil {
		return fmt.Errorf("record disconnect %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record disconnect %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession returns the history row for id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	query := `SELECT id, remote_addr, connected_at, disconnected_at, words_taken FROM sessions WHERE id = ?`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListHistory returns the most recent sessions first. A limit <= 0 uses the
// default.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `SELECT id, remote_addr, connected_at, disconnected_at, words_taken
		FROM sessions ORDER BY connected_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]models.SessionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.SessionRecord, error) {
	rec := &models.SessionRecord{}
	var disconnected sql.NullTime

	if err := row.Scan(&rec.ID, &rec.RemoteAddr, &rec.ConnectedAt, &disconnected, &rec.WordsTaken); err != nil {
		return nil, err
	}
	if disconnected.Valid {
		t := disconnected.Time
		rec.DisconnectedAt = &t
	}
	return rec, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Package pg persists the console's audit trail in PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store appends audit entries and serves the recent-activity view.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool defaults sized for a small console.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Entry is one audit record as stored.
type Entry struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Event     string          `json:"event"`
	RequestID string          `json:"request_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Fields    json.RawMessage `json:"fields"`
}

// Record implements audit.Sink: it appends one entry built from the
// enriched log map.
func (s *Store) Record(ctx context.Context, event string, entry map[string]any) error {
	requestID, _ := entry["request_id"].(string)
	userID, _ := entry["user_id"].(string)
	fields, err := json.Marshal(entry["fields"])
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into console_audit(created_at, event, request_id, user_id, fields)
		values (now(), $1, $2, $3, $4)
	`, event, requestID, userID, fields)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest audit entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, created_at, event, request_id, user_id, fields
		from console_audit
		order by id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var requestID, userID sql.NullString
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Event, &requestID, &userID, &e.Fields); err != nil {
			return nil, err
		}
		e.RequestID = requestID.String
		e.UserID = userID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

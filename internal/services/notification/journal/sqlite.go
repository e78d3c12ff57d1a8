// Package journal records every emitted notification in a local SQLite
// file. It is an audit trail of what was published, not a replay queue.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"foodhub/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    event       TEXT NOT NULL,
    payload     TEXT NOT NULL,
    emitted_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_topic ON notifications(topic, id);
`

// DefaultLimit caps Recent when no limit is given
const DefaultLimit = 50

// Journal is the SQLite notification log
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path. Use ":memory:" for a
// throwaway journal.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}

	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends n to the journal
func (j *Journal) Record(ctx context.Context, n models.Notification) error {
	const q = `INSERT INTO notifications (topic, event, payload, emitted_at) VALUES (?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, q,
		n.Topic,
		n.Event,
		string(n.Payload),
		n.EmittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s on %s: %w", n.Event, n.Topic, err)
	}
	return nil
}

// Recent returns the newest notifications first, optionally restricted to
// one topic.
func (j *Journal) Recent(ctx context.Context, topic string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultLimit
	}

	const q = `
		SELECT topic, event, payload, emitted_at
		FROM   notifications
		WHERE  ? = '' OR topic = ?
		ORDER  BY id DESC
		LIMIT  ?`

	rows, err := j.db.QueryContext(ctx, q, topic, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n         models.Notification
			payload   string
			emittedAt string
		)
		if err := rows.Scan(&n.Topic, &n.Event, &payload, &emittedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		n.Payload = json.RawMessage(payload)
		n.EmittedAt, err = time.Parse(time.RFC3339Nano, emittedAt)
		if err != nil {
			return nil, fmt.Errorf("journal: parse time %q: %w", emittedAt, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

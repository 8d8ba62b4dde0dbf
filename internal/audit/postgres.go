package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresMirror archives committed audit entries into Postgres for offline
// querying. It is strictly a mirror: the CSV store remains the write-ahead
// source of truth, and mirror failures are logged, not propagated.
type PostgresMirror struct {
	db *sql.DB
}

const createMirrorTable = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq_id        BIGINT PRIMARY KEY,
	ts            TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	payload       TEXT NOT NULL,
	prev_checksum TEXT NOT NULL,
	checksum      TEXT NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenPostgresMirror connects, verifies the connection, and ensures the
// archive table exists.
func OpenPostgresMirror(dsn string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres mirror: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres mirror: %w", err)
	}
	if _, err := db.Exec(createMirrorTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_entries table: %w", err)
	}
	return &PostgresMirror{db: db}, nil
}

// Append archives one entry. ON CONFLICT keeps re-runs idempotent.
func (m *PostgresMirror) Append(e Entry) error {
	_, err := m.db.Exec(
		`INSERT INTO audit_entries (seq_id, ts, event_type, payload, prev_checksum, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (seq_id) DO NOTHING`,
		int64(e.SeqID), e.Timestamp, e.EventType, e.Payload, e.PrevChecksum, e.Checksum,
	)
	return err
}

// Close releases the connection pool.
func (m *PostgresMirror) Close() error {
	return m.db.Close()
}

// Package sqlite implements the relayboard audit log backed by a SQLite
// database. It records every processed relay event (heartbeats excluded)
// and every device authorization session together with its eventual
// consumption or expiry marker.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"relayboard/internal/domain"
)

// Store wraps a SQLite database connection for all audit persistence.
type Store struct {
	db *sql.DB
}

const defaultMaxOpenConns = 4
const defaultMaxIdleConns = 4

// Open creates or opens the SQLite database at path, runs migrations, and
// enables WAL mode for concurrent dashboard reads against event writes.
func Open(path string) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	// Append per-connection PRAGMAs to the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)

	// journal_mode and busy_timeout are database-wide; set them once here.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	repeater_pid INTEGER NOT NULL,
	viewer_ip TEXT NOT NULL,
	server_ip TEXT NOT NULL,
	connection_code INTEGER NOT NULL,
	mode INTEGER NOT NULL,
	viewer_table_index INTEGER NOT NULL,
	server_table_index INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS device_auth (
	id TEXT PRIMARY KEY,
	serial_id TEXT NOT NULL,
	session_id INTEGER NOT NULL,
	client_ip TEXT NOT NULL,
	server_slot TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	used_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_device_auth_session_id ON device_auth(session_id);
CREATE INDEX IF NOT EXISTS idx_device_auth_status ON device_auth(status);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// RecordEvent appends one processed relay event to the audit log.
func (s *Store) RecordEvent(ctx context.Context, e domain.Event) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO events
(id, event_type, timestamp, repeater_pid, viewer_ip, server_ip, connection_code, mode, viewer_table_index, server_table_index, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(e.Kind), e.Timestamp.UTC(), e.RepeaterPID,
		e.ViewerAddr, e.ServerAddr, e.Code, e.Mode, e.ViewerSlot, e.ServerSlot,
		time.Now().UTC())
	return err
}

// RecentEvents returns the newest audited events, heartbeats excluded.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, event_type, timestamp, repeater_pid, viewer_ip, server_ip, connection_code, mode
FROM events
WHERE event_type != ?
ORDER BY timestamp DESC, created_at DESC
LIMIT ?`, string(domain.KindRepeaterHeartbeat), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Timestamp, &e.RepeaterPID, &e.ViewerAddr, &e.ServerAddr, &e.Code, &e.Mode); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordAuthSession persists a freshly granted authorization as pending.
func (s *Store) RecordAuthSession(ctx context.Context, sess domain.AuthSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO device_auth(id, serial_id, session_id, client_ip, server_slot, status, created_at, used_at)
VALUES(?, ?, ?, ?, ?, ?, ?, NULL)`,
		uuid.NewString(), sess.SerialID, sess.SessionID, sess.ClientAddr,
		sess.ServerSlot, domain.AuthRecordPending, sess.CreatedAt.UTC())
	return err
}

// MarkAuthSessionUsed marks a pending authorization as consumed by a viewer
// attach. Already-resolved records are left untouched.
func (s *Store) MarkAuthSessionUsed(ctx context.Context, sessionID int64) error {
	return s.markAuthSession(ctx, sessionID, domain.AuthRecordUsed)
}

// MarkAuthSessionExpired marks a pending authorization as evicted by the
// expiration sweep.
func (s *Store) MarkAuthSessionExpired(ctx context.Context, sessionID int64) error {
	return s.markAuthSession(ctx, sessionID, domain.AuthRecordExpired)
}

func (s *Store) markAuthSession(ctx context.Context, sessionID int64, status string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE device_auth
SET status = ?, used_at = ?
WHERE session_id = ? AND status = ?`,
		status, time.Now().UTC(), sessionID, domain.AuthRecordPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAuthRecords returns the newest device authorization records.
func (s *Store) ListAuthRecords(ctx context.Context, limit int) ([]domain.AuthRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, serial_id, session_id, client_ip, server_slot, status, created_at, used_at
FROM device_auth
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AuthRecord
	for rows.Next() {
		var r domain.AuthRecord
		var usedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.SerialID, &r.SessionID, &r.ClientAddr, &r.ServerSlot, &r.Status, &r.CreatedAt, &usedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t := usedAt.Time
			r.UsedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

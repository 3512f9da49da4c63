package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Recorder keeps an audit trail of portal sign-ins.
type Recorder interface {
	RecordLogin(ctx context.Context, sessionID string, userID int64, expiresAt time.Time, ip, ua string) error
	RecordLogout(ctx context.Context, sessionID string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRecorder writes audit rows to PostgreSQL.
type PGRecorder struct {
	db execer
}

// NewPGRecorder accepts a *pgxpool.Pool or any pgx connection.
func NewPGRecorder(db execer) *PGRecorder {
	return &PGRecorder{db: db}
}

const createSessionsTable = `CREATE TABLE IF NOT EXISTS portal_sessions (
	id TEXT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	ip TEXT,
	user_agent TEXT
)`

const createSessionsUserIndex = `CREATE INDEX IF NOT EXISTS portal_sessions_user_idx ON portal_sessions (user_id, created_at DESC)`

// EnsureSchema creates the audit table when missing. Run it inside a
// transaction so a half-created schema is never left behind.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createSessionsTable, createSessionsUserIndex} {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const insertSession = `INSERT INTO portal_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at, ended_at = NULL, ip = EXCLUDED.ip, user_agent = EXCLUDED.user_agent`

// RecordLogin stores a sign-in.
func (r *PGRecorder) RecordLogin(ctx context.Context, sessionID string, userID int64, expiresAt time.Time, ip, ua string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, insertSession,
		sessionID,
		userID,
		pgtype.Timestamptz{Time: now, Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	return err
}

// RecordLogout stamps the end of a session.
func (r *PGRecorder) RecordLogout(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `UPDATE portal_sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`,
		sessionID, pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true})
	return err
}

// NopRecorder discards audit events.
type NopRecorder struct{}

// RecordLogin implements Recorder.
func (NopRecorder) RecordLogin(context.Context, string, int64, time.Time, string, string) error {
	return nil
}

// RecordLogout implements Recorder.
func (NopRecorder) RecordLogout(context.Context, string) error { return nil }

var (
	_ Recorder = (*PGRecorder)(nil)
	_ Recorder = NopRecorder{}
)

// Package postgres provides the PostgreSQL-backed implementation of
// [record.Store].
//
// All operations share a single [pgxpool.Pool]. [Migrate] creates the two
// tables the pipeline writes — recording_session and transcript_chunk —
// and is run automatically by [NewStore].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.CreateSession(ctx, record.Session{ID: "sess-A", UserID: "u1"})
//	_ = store.AppendChunk(ctx, record.Chunk{SessionID: "sess-A", Index: 0, Text: "…"})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRecordingSession = `
CREATE TABLE IF NOT EXISTS recording_session (
    id              TEXT         PRIMARY KEY,
    user_id         TEXT         NOT NULL,
    title           TEXT         NOT NULL DEFAULT '',
    status          TEXT         NOT NULL,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    transcript_text TEXT,
    summary         TEXT,
    duration_ns     BIGINT
);

CREATE INDEX IF NOT EXISTS idx_recording_session_user_id
    ON recording_session (user_id);

CREATE INDEX IF NOT EXISTS idx_recording_session_status
    ON recording_session (status);
`

const ddlTranscriptChunk = `
CREATE TABLE IF NOT EXISTS transcript_chunk (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL REFERENCES recording_session (id) ON DELETE CASCADE,
    chunk_index INTEGER      NOT NULL,
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    confidence  DOUBLE PRECISION,

    UNIQUE (session_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_transcript_chunk_session
    ON transcript_chunk (session_id, chunk_index);
`

// Migrate creates all tables and indexes required by the store. Every
// statement is idempotent (CREATE … IF NOT EXISTS), so Migrate is safe to
// run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlRecordingSession, ddlTranscriptChunk} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

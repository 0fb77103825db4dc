package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// Compile-time interface check.
var _ record.Store = (*Store)(nil)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// Store implements [record.Store] on top of a pgx connection pool.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn, pings it, and runs
// [Migrate]. The caller owns the returned Store and must call Close.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("record store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("record store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("record store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Ping checks database connectivity. Wired into the /readyz probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateSession implements [record.Store].
func (s *Store) CreateSession(ctx context.Context, sess record.Session) error {
	const q = `
		INSERT INTO recording_session (id, user_id, title, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, sess.ID, sess.UserID, sess.Title, string(sess.Status), sess.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return record.ErrSessionExists
		}
		return fmt.Errorf("record store: create session: %w", err)
	}
	return nil
}

// GetSession implements [record.Store].
func (s *Store) GetSession(ctx context.Context, id string) (record.Session, error) {
	const q = `
		SELECT id, user_id, title, status, created_at,
		       COALESCE(transcript_text, ''), COALESCE(summary, ''), COALESCE(duration_ns, 0)
		FROM   recording_session
		WHERE  id = $1`

	var (
		sess       record.Session
		status     string
		durationNS int64
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Title,
		&status,
		&sess.CreatedAt,
		&sess.TranscriptText,
		&sess.Summary,
		&durationNS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.Session{}, record.ErrSessionNotFound
	}
	if err != nil {
		return record.Session{}, fmt.Errorf("record store: get session: %w", err)
	}
	sess.Status = record.Status(status)
	sess.Duration = time.Duration(durationNS)
	return sess, nil
}

// UpdateStatus implements [record.Store].
func (s *Store) UpdateStatus(ctx context.Context, id string, status record.Status) error {
	const q = `UPDATE recording_session SET status = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("record store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrSessionNotFound
	}
	return nil
}

// CompleteSession implements [record.Store].
func (s *Store) CompleteSession(ctx context.Context, id, transcript, summary string, duration time.Duration) error {
	const q = `
		UPDATE recording_session
		SET    status = $2, transcript_text = $3, summary = $4, duration_ns = $5
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(record.StatusCompleted), transcript, summary, duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("record store: complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrSessionNotFound
	}
	return nil
}

// AppendChunk implements [record.Store].
func (s *Store) AppendChunk(ctx context.Context, c record.Chunk) error {
	const q = `
		INSERT INTO transcript_chunk (id, session_id, chunk_index, text, timestamp, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)`

	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, q, id, c.SessionID, c.Index, c.Text, c.Timestamp, c.Confidence)
	if err != nil {
		return fmt.Errorf("record store: append chunk: %w", err)
	}
	return nil
}

// ListChunks implements [record.Store].
func (s *Store) ListChunks(ctx context.Context, sessionID string) ([]record.Chunk, error) {
	const q = `
		SELECT id, session_id, chunk_index, text, timestamp, COALESCE(confidence, 0)
		FROM   transcript_chunk
		WHERE  session_id = $1
		ORDER  BY chunk_index`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("record store: list chunks: %w", err)
	}
	return collectChunks(rows)
}

// CountChunks implements [record.Store].
func (s *Store) CountChunks(ctx context.Context, sessionID string) (int, error) {
	const q = `SELECT count(*) FROM transcript_chunk WHERE session_id = $1`

	var n int
	if err := s.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("record store: count chunks: %w", err)
	}
	return n, nil
}

// LastChunks implements [record.Store].
func (s *Store) LastChunks(ctx context.Context, sessionID string, n int) ([]record.Chunk, error) {
	const q = `
		SELECT id, session_id, chunk_index, text, timestamp, COALESCE(confidence, 0)
		FROM (
		    SELECT id, session_id, chunk_index, text, timestamp, confidence
		    FROM   transcript_chunk
		    WHERE  session_id = $1
		    ORDER  BY chunk_index DESC
		    LIMIT  $2
		) tail
		ORDER BY chunk_index`

	rows, err := s.pool.Query(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("record store: last chunks: %w", err)
	}
	return collectChunks(rows)
}

// collectChunks scans pgx rows into a slice of Chunk values.
func collectChunks(rows pgx.Rows) ([]record.Chunk, error) {
	chunks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record.Chunk, error) {
		var c record.Chunk
		err := row.Scan(&c.ID, &c.SessionID, &c.Index, &c.Text, &c.Timestamp, &c.Confidence)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("record store: scan rows: %w", err)
	}
	if chunks == nil {
		chunks = []record.Chunk{}
	}
	return chunks, nil
}

// Package postgres implements the vector index on PostgreSQL with the
// pgvector extension. Similarity queries use the <=> cosine-distance
// operator, so ranking happens inside the database with an ANN index.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq" // registers the "postgres" driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// Ensure interface compliance at compile time.
var _ storage.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements storage.VectorIndex using PostgreSQL + pgvector.
type VectorIndex struct {
	db        *sql.DB
	dimension int
}

// NewVectorIndex connects to dsn, verifies the pgvector extension, and
// applies the schema. dimension fixes the vector column width and must match
// the embedding provider.
func NewVectorIndex(dsn string, dimension int) (*VectorIndex, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", storage.ErrInvalidInput)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: pgvector extension unavailable: %w", err)
	}

	schema := fmt.Sprintf(schemaTemplate, dimension)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	return &VectorIndex{db: db, dimension: dimension}, nil
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS memories (
    id           TEXT PRIMARY KEY,
    text         TEXT NOT NULL,
    embedding    vector(%d),
    session_id   TEXT NOT NULL DEFAULT '',
    message_type TEXT NOT NULL DEFAULT '',
    text_length  INTEGER NOT NULL DEFAULT 0,
    memory_type  TEXT NOT NULL DEFAULT '',
    tags         TEXT NOT NULL DEFAULT '',
    importance   INTEGER NOT NULL DEFAULT 0,
    source       TEXT NOT NULL DEFAULT '',
    context      TEXT NOT NULL DEFAULT '',
    related_ids  TEXT NOT NULL DEFAULT '',
    extra        JSONB NOT NULL DEFAULT '{}',
    ts           TIMESTAMPTZ NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
`

const selectColumns = `
	SELECT id, text,
	       session_id, message_type, text_length, memory_type,
	       tags, importance, source, context, related_ids, extra,
	       ts, created_at`

// Upsert creates or overwrites a record keyed by its ID.
func (x *VectorIndex) Upsert(ctx context.Context, rec *storage.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record with ID is required", storage.ErrInvalidInput)
	}

	extraJSON, err := json.Marshal(rec.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("postgres: encode extra metadata: %w", err)
	}
	if rec.Metadata.Extra == nil {
		extraJSON = []byte("{}")
	}

	tags, err := storage.JoinList(rec.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("postgres: encode tags for %s: %w", rec.ID, err)
	}
	related, err := storage.JoinList(rec.Metadata.RelatedMemoryIDs)
	if err != nil {
		return fmt.Errorf("postgres: encode related ids for %s: %w", rec.ID, err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO memories (
			id, text, embedding,
			session_id, message_type, text_length, memory_type,
			tags, importance, source, context, related_ids, extra,
			ts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			session_id = EXCLUDED.session_id,
			message_type = EXCLUDED.message_type,
			text_length = EXCLUDED.text_length,
			memory_type = EXCLUDED.memory_type,
			tags = EXCLUDED.tags,
			importance = EXCLUDED.importance,
			source = EXCLUDED.source,
			context = EXCLUDED.context,
			related_ids = EXCLUDED.related_ids,
			extra = EXCLUDED.extra,
			ts = EXCLUDED.ts
	`

	_, err = x.db.ExecContext(ctx, query,
		rec.ID, rec.Text, pgvector.NewVector(rec.Embedding),
		rec.Metadata.SessionID, string(rec.Metadata.MessageType), rec.Metadata.TextLength, rec.Metadata.MemoryType,
		tags, rec.Metadata.Importance, string(rec.Metadata.Source),
		rec.Metadata.Context, related, string(extraJSON),
		rec.Metadata.Timestamp, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert memory %s: %w", rec.ID, err)
	}
	return nil
}

// Query returns up to limit candidates ordered by ascending cosine distance,
// computed in the database via the <=> operator.
func (x *VectorIndex) Query(ctx context.Context, embedding []float32, limit int) ([]storage.VectorMatch, error) {
	if len(embedding) == 0 {
		return []storage.VectorMatch{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := selectColumns + `, embedding <=> $1 AS distance
		FROM memories
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := x.db.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.VectorMatch
	for rows.Next() {
		var (
			rec      storage.VectorRecord
			distance float64
		)
		if err := scanInto(rows, &rec, &distance); err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		matches = append(matches, storage.VectorMatch{Record: rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate matches: %w", err)
	}
	return matches, nil
}

// Get retrieves a record by ID.
func (x *VectorIndex) Get(ctx context.Context, id string) (*storage.VectorRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: ID is required", storage.ErrInvalidInput)
	}

	row := x.db.QueryRowContext(ctx, selectColumns+` FROM memories WHERE id = $1`, id)
	var rec storage.VectorRecord
	if err := scanInto(row, &rec, nil); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get memory %s: %w", id, err)
	}
	return &rec, nil
}

// Scan returns up to limit records ordered newest first.
func (x *VectorIndex) Scan(ctx context.Context, limit int) ([]storage.VectorRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := x.db.QueryContext(ctx, selectColumns+`
		FROM memories
		ORDER BY created_at DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []storage.VectorRecord
	for rows.Next() {
		var rec storage.VectorRecord
		if err := scanInto(rows, &rec, nil); err != nil {
			return nil, fmt.Errorf("postgres: scan memory row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate memories: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count memories: %w", err)
	}
	return count, nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (x *VectorIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := x.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("postgres: delete memories: %w", err)
	}
	return nil
}

// Clear removes all records.
func (x *VectorIndex) Clear(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("postgres: clear memories: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (x *VectorIndex) Ping(ctx context.Context) error {
	return x.db.PingContext(ctx)
}

// Close closes the database connection.
func (x *VectorIndex) Close() error {
	return x.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanInto fills rec from a row produced by selectColumns, optionally
// followed by a distance column when distance is non-nil.
func scanInto(row rowScanner, rec *storage.VectorRecord, distance *float64) error {
	var (
		messageType   string
		source        string
		tags, related string
		extraJSON     string
	)

	dest := []any{
		&rec.ID, &rec.Text,
		&rec.Metadata.SessionID, &messageType, &rec.Metadata.TextLength, &rec.Metadata.MemoryType,
		&tags, &rec.Metadata.Importance, &source, &rec.Metadata.Context, &related, &extraJSON,
		&rec.Metadata.Timestamp, &rec.CreatedAt,
	}
	if distance != nil {
		dest = append(dest, distance)
	}

	if err := row.Scan(dest...); err != nil {
		return err
	}

	rec.Metadata.MessageType = types.MessageType(messageType)
	rec.Metadata.Source = types.MemorySource(source)
	rec.Metadata.Tags = storage.SplitList(tags)
	rec.Metadata.RelatedMemoryIDs = storage.SplitList(related)
	if extraJSON != "" && extraJSON != "{}" {
		if err := json.Unmarshal([]byte(extraJSON), &rec.Metadata.Extra); err != nil {
			return fmt.Errorf("decode extra metadata for %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Package sqlite implements the vector index and the property-graph store on
// a single SQLite database using the pure-Go modernc.org/sqlite driver.
//
// Embeddings are stored as little-endian float32 BLOBs and ranked by cosine
// distance in process. For typical personal-memory datasets (< 10k records)
// this is fast enough; larger deployments should use the Postgres/pgvector
// backend for indexed ANN search.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// vectorQueryMaxCandidates caps the number of embeddings loaded into memory
// during a similarity query. Candidates are selected newest first so recent
// memories are always considered.
const vectorQueryMaxCandidates = 10_000

// Ensure interface compliance at compile time.
var _ storage.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements storage.VectorIndex using SQLite.
type VectorIndex struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn and applies the schema.
// SQLite only supports one concurrent writer, so the connection pool is
// pinned to a single connection; WAL mode lets readers proceed regardless.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: configure %s: %w", dsn, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return db, nil
}

// NewVectorIndex creates a vector index on an already-opened database.
func NewVectorIndex(db *sql.DB) *VectorIndex {
	return &VectorIndex{db: db}
}

// NewVectorIndexAt opens dsn and returns a vector index owning the connection.
func NewVectorIndexAt(dsn string) (*VectorIndex, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return NewVectorIndex(db), nil
}

// DB exposes the underlying connection so the graph store can share it.
func (x *VectorIndex) DB() *sql.DB {
	return x.db
}

// Upsert creates or overwrites a record keyed by its ID.
func (x *VectorIndex) Upsert(ctx context.Context, rec *storage.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record with ID is required", storage.ErrInvalidInput)
	}

	extraJSON, err := json.Marshal(rec.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("sqlite: encode extra metadata: %w", err)
	}

	tags, err := storage.JoinList(rec.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encode tags for %s: %w", rec.ID, err)
	}
	related, err := storage.JoinList(rec.Metadata.RelatedMemoryIDs)
	if err != nil {
		return fmt.Errorf("sqlite: encode related ids for %s: %w", rec.ID, err)
	}

	const query = `
		INSERT INTO memories (
			id, text, embedding, dimension,
			session_id, message_type, text_length, memory_type,
			tags, importance, source, context, related_ids, extra,
			timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			session_id = excluded.session_id,
			message_type = excluded.message_type,
			text_length = excluded.text_length,
			memory_type = excluded.memory_type,
			tags = excluded.tags,
			importance = excluded.importance,
			source = excluded.source,
			context = excluded.context,
			related_ids = excluded.related_ids,
			extra = excluded.extra,
			timestamp = excluded.timestamp
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = x.db.ExecContext(ctx, query,
		rec.ID, rec.Text, serializeEmbedding(rec.Embedding), len(rec.Embedding),
		rec.Metadata.SessionID, string(rec.Metadata.MessageType), rec.Metadata.TextLength, rec.Metadata.MemoryType,
		tags, rec.Metadata.Importance, string(rec.Metadata.Source),
		rec.Metadata.Context, related, string(extraJSON),
		rec.Metadata.Timestamp, createdAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert memory %s: %w", rec.ID, err)
	}
	return nil
}

// Query returns up to limit candidates ordered by ascending cosine distance.
func (x *VectorIndex) Query(ctx context.Context, embedding []float32, limit int) ([]storage.VectorMatch, error) {
	if len(embedding) == 0 {
		return []storage.VectorMatch{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := x.db.QueryContext(ctx, selectColumns+`
		FROM memories
		WHERE embedding IS NOT NULL AND dimension > 0
		ORDER BY created_at DESC
		LIMIT ?`, vectorQueryMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.VectorMatch
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan embedding row: %w", err)
		}
		dist := storage.CosineDistance(embedding, rec.Embedding)
		if math.IsNaN(dist) {
			continue
		}
		matches = append(matches, storage.VectorMatch{Record: *rec, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate embeddings: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Get retrieves a record by ID.
func (x *VectorIndex) Get(ctx context.Context, id string) (*storage.VectorRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: ID is required", storage.ErrInvalidInput)
	}

	row := x.db.QueryRowContext(ctx, selectColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get memory %s: %w", id, err)
	}
	return rec, nil
}

// Scan returns up to limit records ordered newest first.
func (x *VectorIndex) Scan(ctx context.Context, limit int) ([]storage.VectorRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := x.db.QueryContext(ctx, selectColumns+`
		FROM memories
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []storage.VectorRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan memory row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate memories: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (x *VectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count memories: %w", err)
	}
	return count, nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (x *VectorIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := x.db.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("sqlite: delete memories: %w", err)
	}
	return nil
}

// Clear removes all records.
func (x *VectorIndex) Clear(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("sqlite: clear memories: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (x *VectorIndex) Ping(ctx context.Context) error {
	return x.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (x *VectorIndex) Close() error {
	return x.db.Close()
}

const selectColumns = `
	SELECT id, text, embedding, dimension,
	       session_id, message_type, text_length, memory_type,
	       tags, importance, source, context, related_ids, extra,
	       timestamp, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*storage.VectorRecord, error) {
	var (
		rec            storage.VectorRecord
		embeddingBytes []byte
		dimension      int
		messageType    string
		source         string
		tags, related  string
		extraJSON      string
	)

	err := row.Scan(
		&rec.ID, &rec.Text, &embeddingBytes, &dimension,
		&rec.Metadata.SessionID, &messageType, &rec.Metadata.TextLength, &rec.Metadata.MemoryType,
		&tags, &rec.Metadata.Importance, &source, &rec.Metadata.Context, &related, &extraJSON,
		&rec.Metadata.Timestamp, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Metadata.MessageType = types.MessageType(messageType)
	rec.Metadata.Source = types.MemorySource(source)
	rec.Metadata.Tags = storage.SplitList(tags)
	rec.Metadata.RelatedMemoryIDs = storage.SplitList(related)

	if extraJSON != "" && extraJSON != "{}" {
		if err := json.Unmarshal([]byte(extraJSON), &rec.Metadata.Extra); err != nil {
			return nil, fmt.Errorf("decode extra metadata for %s: %w", rec.ID, err)
		}
	}

	rec.Embedding, err = deserializeEmbedding(embeddingBytes, dimension)
	if err != nil {
		return nil, fmt.Errorf("deserialize embedding for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// serializeEmbedding converts a float32 slice to little-endian bytes.
func serializeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts little-endian bytes back to a float32 slice.
func deserializeEmbedding(data []byte, dimension int) ([]float32, error) {
	if dimension == 0 || len(data) == 0 {
		return nil, nil
	}
	if len(data) != dimension*4 {
		return nil, fmt.Errorf("embedding blob is %d bytes, expected %d for dimension %d",
			len(data), dimension*4, dimension)
	}
	embedding := make([]float32, dimension)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding, nil
}


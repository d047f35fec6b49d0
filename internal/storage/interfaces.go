// Package storage provides composable storage interfaces for the memory
// subsystem.
//
// The layer is split into small, focused interfaces that can be implemented
// independently: a vector index for embeddings, a property-graph store for
// nodes and relationships, and a read-full/write-full document store for
// durable queue and checkpoint state.
package storage

import (
	"context"

	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// VectorIndex persists (vector, text, metadata) tuples and answers
// nearest-neighbor queries. Implementations: SQLite (BLOB embeddings, cosine
// ranking in process) and Postgres with pgvector.
type VectorIndex interface {
	// Upsert creates or overwrites a record keyed by its ID.
	Upsert(ctx context.Context, rec *VectorRecord) error

	// Query returns up to limit candidates ordered by ascending cosine
	// distance from the given embedding.
	Query(ctx context.Context, embedding []float32, limit int) ([]VectorMatch, error)

	// Get retrieves a record by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*VectorRecord, error)

	// Scan returns up to limit records ordered by recency (newest first).
	// Used by the keyword fallback and the empty-query list mode.
	Scan(ctx context.Context, limit int) ([]VectorRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Delete removes records by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}

// GraphStore persists nodes and relationships of the property graph with
// merge (create-or-update) semantics. Idempotent-by-ID writes substitute for
// locking, so concurrent upserts are safe.
type GraphStore interface {
	// MergeNode creates the node if absent, otherwise updates its properties
	// and updated_at. Never duplicates by ID.
	MergeNode(ctx context.Context, node *types.GraphNode) error

	// MergeRelationship creates or updates a relationship keyed by
	// (SourceID, Type, TargetID). Both endpoint nodes must already exist;
	// a missing endpoint returns ErrMissingEndpoint.
	MergeRelationship(ctx context.Context, rel *types.GraphRelationship) error

	// GetNode retrieves a node by ID. Returns ErrNotFound if absent.
	GetNode(ctx context.Context, id string) (*types.GraphNode, error)

	// NodeExists reports whether a node with the given ID exists.
	NodeExists(ctx context.Context, id string) (bool, error)

	// DeleteNode detach-deletes a node: the node and all its incident
	// relationships are removed. Deleting a missing node is a no-op.
	DeleteNode(ctx context.Context, id string) error

	// DeleteNodesByLabel detach-deletes all nodes carrying the given label
	// and returns the number of nodes removed.
	DeleteNodesByLabel(ctx context.Context, label string) (int, error)

	// CountNodes returns the number of nodes with the given label, or all
	// nodes when label is empty.
	CountNodes(ctx context.Context, label string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// DocumentStore provides read-full/write-full JSON document semantics for
// durable queue and checkpoint state. No partial-update API is assumed.
type DocumentStore interface {
	// Read unmarshals the named document into v. Returns ErrNotFound when
	// the document does not exist yet.
	Read(name string, v any) error

	// Write marshals v and replaces the named document atomically
	// (write-to-temp then rename).
	Write(name string, v any) error

	// Path returns the filesystem path backing the named document, or empty
	// when the store is not file-backed. Used by the change watcher.
	Path(name string) string
}

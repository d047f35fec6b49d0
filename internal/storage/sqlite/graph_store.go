package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

// Ensure interface compliance at compile time.
var _ storage.GraphStore = (*GraphStore)(nil)

// GraphStore implements storage.GraphStore using SQLite.
// Nodes merge on ID; relationships merge on (source_id, type, target_id).
type GraphStore struct {
	db *sql.DB
}

// NewGraphStore creates a graph store on an already-opened database
// (typically shared with the vector index).
func NewGraphStore(db *sql.DB) *GraphStore {
	return &GraphStore{db: db}
}

// MergeNode creates the node if absent, otherwise updates its properties and
// updated_at. The created_at of an existing node is preserved.
func (g *GraphStore) MergeNode(ctx context.Context, node *types.GraphNode) error {
	if node == nil || node.ID == "" || node.Label == "" {
		return fmt.Errorf("%w: node with ID and label is required", storage.ErrInvalidInput)
	}

	props, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("sqlite: encode node properties for %s: %w", node.ID, err)
	}

	now := time.Now().UTC()
	const query = `
		INSERT INTO graph_nodes (id, label, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			properties = excluded.properties,
			updated_at = excluded.updated_at
	`
	if _, err := g.db.ExecContext(ctx, query, node.ID, node.Label, string(props), now, now); err != nil {
		return fmt.Errorf("sqlite: merge node %s: %w", node.ID, err)
	}
	return nil
}

// MergeRelationship creates or updates a relationship keyed by
// (source_id, type, target_id). Both endpoints must already exist.
func (g *GraphStore) MergeRelationship(ctx context.Context, rel *types.GraphRelationship) error {
	if rel == nil || rel.Type == "" || rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: relationship with type and endpoints is required", storage.ErrInvalidInput)
	}

	for _, id := range []string{rel.SourceID, rel.TargetID} {
		exists, err := g.NodeExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", storage.ErrMissingEndpoint, id)
		}
	}

	props, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("sqlite: encode relationship properties for %s: %w", rel.ID, err)
	}

	relID := rel.ID
	if relID == "" {
		relID = fmt.Sprintf("%s_%s_%s", rel.SourceID, rel.Type, rel.TargetID)
	}

	now := time.Now().UTC()
	const query = `
		INSERT INTO graph_relationships (id, source_id, target_id, type, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, type, target_id) DO UPDATE SET
			id = excluded.id,
			properties = excluded.properties,
			updated_at = excluded.updated_at
	`
	if _, err := g.db.ExecContext(ctx, query, relID, rel.SourceID, rel.TargetID, rel.Type, string(props), now, now); err != nil {
		return fmt.Errorf("sqlite: merge relationship %s: %w", relID, err)
	}
	return nil
}

// GetNode retrieves a node by ID.
func (g *GraphStore) GetNode(ctx context.Context, id string) (*types.GraphNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}

	var (
		node  types.GraphNode
		props string
	)
	err := g.db.QueryRowContext(ctx, `
		SELECT id, label, properties, created_at, updated_at
		FROM graph_nodes WHERE id = ?`, id).
		Scan(&node.ID, &node.Label, &props, &node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get node %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(props), &node.Properties); err != nil {
		return nil, fmt.Errorf("sqlite: decode node properties for %s: %w", id, err)
	}
	return &node, nil
}

// NodeExists reports whether a node with the given ID exists.
func (g *GraphStore) NodeExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := g.db.QueryRowContext(ctx, `SELECT 1 FROM graph_nodes WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: check node %s: %w", id, err)
	}
	return true, nil
}

// DeleteNode detach-deletes a node and all its incident relationships.
// Deleting a missing node is a no-op.
func (g *GraphStore) DeleteNode(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete node %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_relationships WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("sqlite: detach node %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete node %s: %w", id, err)
	}
	return tx.Commit()
}

// DeleteNodesByLabel detach-deletes all nodes with the given label and
// returns the number of nodes removed.
func (g *GraphStore) DeleteNodesByLabel(ctx context.Context, label string) (int, error) {
	if label == "" {
		return 0, fmt.Errorf("%w: label is required", storage.ErrInvalidInput)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin delete by label %s: %w", label, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM graph_relationships
		WHERE source_id IN (SELECT id FROM graph_nodes WHERE label = ?)
		   OR target_id IN (SELECT id FROM graph_nodes WHERE label = ?)`, label, label); err != nil {
		return 0, fmt.Errorf("sqlite: detach nodes with label %s: %w", label, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE label = ?`, label)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete nodes with label %s: %w", label, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: count deleted nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountNodes returns the number of nodes with the given label, or all nodes
// when label is empty.
func (g *GraphStore) CountNodes(ctx context.Context, label string) (int, error) {
	var count int
	var err error
	if label == "" {
		err = g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_nodes`).Scan(&count)
	} else {
		err = g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_nodes WHERE label = ?`, label).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: count nodes: %w", err)
	}
	return count, nil
}

// Close is a no-op when the connection is shared with the vector index; the
// owner of the *sql.DB closes it.
func (g *GraphStore) Close() error {
	return nil
}

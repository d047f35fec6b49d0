package syncq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

const stateDocument = "sync-state"

// StateStore persists the sync checkpoint so incremental passes can skip
// units already projected into the graph. The checkpoint is best-effort: a
// crash between a projection and its checkpoint write replays that unit on
// the next pass, which the idempotent upserts absorb.
type StateStore struct {
	mu    sync.Mutex
	store storage.DocumentStore
}

// NewStateStore creates the checkpoint store over the backing documents.
func NewStateStore(store storage.DocumentStore) *StateStore {
	return &StateStore{store: store}
}

// Load reads the checkpoint, returning a zero-valued state on first run.
func (s *StateStore) Load() (*types.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state types.SyncState
	err := s.store.Read(stateDocument, &state)
	if errors.Is(err, storage.ErrNotFound) {
		return &types.SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncq: failed to read sync state: %w", err)
	}
	return &state, nil
}

// Save writes the checkpoint, stamping the sync timestamp if unset.
func (s *StateStore) Save(state *types.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.LastSyncTimestamp == "" {
		state.LastSyncTimestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.store.Write(stateDocument, state); err != nil {
		return fmt.Errorf("syncq: failed to write sync state: %w", err)
	}
	return nil
}

// Reset clears the checkpoint so the next pass runs from scratch.
func (s *StateStore) Reset() error {
	return s.Save(&types.SyncState{
		LastSyncTimestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/state"
)

// dryRunStateStore wraps a StateStore and logs saves instead of executing them.
type dryRunStateStore struct {
	logger *zap.Logger
	store  StateStore
}

// newDryRunStateStore creates a new dryRunStateStore that wraps the given StateStore.
func newDryRunStateStore(store StateStore, logger *zap.Logger) *dryRunStateStore {
	return &dryRunStateStore{
		logger: logger,
		store:  store,
	}
}

// Load delegates to the real store.
func (d *dryRunStateStore) Load(ctx context.Context) (*state.State, error) {
	return d.store.Load(ctx)
}

// Save logs what would be saved and returns nil.
func (d *dryRunStateStore) Save(_ context.Context, st *state.State) error {
	d.logger.Debug("[DRY-RUN] would save state",
		zap.String("currently_syncing", st.CurrentlySyncing),
		zap.Int("bookmarks", len(st.Bookmarks)))
	return nil
}

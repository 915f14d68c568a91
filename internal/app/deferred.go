package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/peteski22/adsbridge/internal/state"
	adsync "github.com/peteski22/adsbridge/internal/sync"
)

// deferredStateStore holds saved state in memory until commit writes the
// latest copy to the wrapped store.
type deferredStateStore struct {
	mu      sync.Mutex
	pending *state.State
	store   adsync.StateStore
}

func newDeferredStateStore(store adsync.StateStore) *deferredStateStore {
	return &deferredStateStore{store: store}
}

// Load delegates to the wrapped store.
func (d *deferredStateStore) Load(ctx context.Context) (*state.State, error) {
	return d.store.Load(ctx)
}

// Save keeps a copy of st for the next commit.
func (d *deferredStateStore) Save(_ context.Context, st *state.State) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = st.Clone()
	return nil
}

// commit saves the latest pending state, if any.
func (d *deferredStateStore) commit(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return nil
	}
	if err := d.store.Save(ctx, d.pending); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	d.pending = nil
	return nil
}

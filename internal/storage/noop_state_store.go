package storage

import (
	"context"

	"github.com/peteski22/adsbridge/internal/state"
)

// NoopStateStore is a state store that never persists.
// Used for dry-run mode and the "none" backend.
type NoopStateStore struct {
	initial *state.State
}

// NewNoopStateStore creates a NoopStateStore that loads a copy of initial.
// A nil initial state loads as empty.
func NewNoopStateStore(initial *state.State) *NoopStateStore {
	if initial == nil {
		initial = state.New()
	}
	return &NoopStateStore{initial: initial}
}

// Load returns a copy of the initial state.
func (s *NoopStateStore) Load(_ context.Context) (*state.State, error) {
	return s.initial.Clone(), nil
}

// Save does nothing.
func (s *NoopStateStore) Save(_ context.Context, _ *state.State) error {
	return nil
}

package state

import (
	"context"
	"fmt"
)

// Bookmarks reads and advances watermarks in a State, persisting the whole
// document on every change.
type Bookmarks struct {
	persister Persister
	state     *State
}

// NewBookmarks wraps s. A nil persister discards writes.
func NewBookmarks(s *State, persister Persister) *Bookmarks {
	if s == nil {
		s = New()
	}
	if s.Bookmarks == nil {
		s.Bookmarks = map[string]any{}
	}
	if persister == nil {
		persister = PersisterFunc(func(context.Context, *State) error { return nil })
	}
	return &Bookmarks{persister: persister, state: s}
}

// Get returns the watermark stored for resource, scoped by the optional
// account and subKey, or def when none is stored. A plain timestamp found
// above the requested scope is treated as a resource-wide watermark.
func (b *Bookmarks) Get(resource, def, account, subKey string) string {
	var node any = b.state.Bookmarks
	for _, key := range scope(resource, account, subKey) {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return def
			}
			node = next
		case string:
			return nonEmpty(v, def)
		default:
			return def
		}
	}

	if v, ok := node.(string); ok {
		return nonEmpty(v, def)
	}
	return def
}

// Set stores value for resource under the optional account and subKey and
// persists the state.
func (b *Bookmarks) Set(ctx context.Context, resource, value, account, subKey string) error {
	keys := scope(resource, account, subKey)

	node := b.state.Bookmarks
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}
	node[keys[len(keys)-1]] = value

	if err := b.persister.Persist(ctx, b.state); err != nil {
		return fmt.Errorf("persisting bookmark for %s: %w", resource, err)
	}
	return nil
}

// CurrentlySyncing returns the resource marked as in progress.
func (b *Bookmarks) CurrentlySyncing() string {
	return b.state.CurrentlySyncing
}

// SetCurrentlySyncing marks resource as in progress, or clears the marker when
// resource is empty, and persists the state.
func (b *Bookmarks) SetCurrentlySyncing(ctx context.Context, resource string) error {
	b.state.CurrentlySyncing = resource
	if err := b.persister.Persist(ctx, b.state); err != nil {
		return fmt.Errorf("persisting currently syncing: %w", err)
	}
	return nil
}

// State returns the underlying document.
func (b *Bookmarks) State() *State {
	return b.state
}

func scope(resource, account, subKey string) []string {
	keys := []string{resource}
	if account != "" {
		keys = append(keys, account)
	}
	if subKey != "" {
		keys = append(keys, subKey)
	}
	return keys
}

func nonEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Package state holds the persisted sync state document and the bookmark
// store that reads and advances its watermarks.
package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// State is the document persisted between runs.
type State struct {
	// Bookmarks maps resource name to its watermark tree. Leaves are timestamps;
	// inner levels are keyed by account ID and, for some resources, sub-type.
	Bookmarks map[string]any `json:"bookmarks"`

	// CurrentlySyncing names the resource that was in progress when the state
	// was last written, or is empty between resources.
	CurrentlySyncing string `json:"currently_syncing,omitempty"`
}

// Persister writes the whole state document after every mutation.
type Persister interface {
	// Persist stores the current state.
	Persist(ctx context.Context, s *State) error
}

// PersisterFunc adapts a function to the Persister interface.
type PersisterFunc func(ctx context.Context, s *State) error

// Persist calls f.
func (f PersisterFunc) Persist(ctx context.Context, s *State) error {
	return f(ctx, s)
}

// New returns an empty state.
func New() *State {
	return &State{Bookmarks: map[string]any{}}
}

// Parse decodes a state document. Empty input yields an empty state.
func Parse(data []byte) (*State, error) {
	s := New()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	if s.Bookmarks == nil {
		s.Bookmarks = map[string]any{}
	}
	return s, nil
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	return &State{
		Bookmarks:        cloneTree(s.Bookmarks),
		CurrentlySyncing: s.CurrentlySyncing,
	}
}

func cloneTree(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if child, ok := v.(map[string]any); ok {
			out[k] = cloneTree(child)
			continue
		}
		out[k] = v
	}
	return out
}

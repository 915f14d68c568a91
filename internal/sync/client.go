package sync

import (
	"context"
	"iter"
	"net/url"
	"time"

	"github.com/peteski22/adsbridge/internal/state"
)

// AdsClient defines the Ads API operations required by the sync engines.
type AdsClient interface {
	// Download fetches and decompresses a report payload. An empty payload is nil.
	Download(ctx context.Context, rawURL string) (map[string]any, error)

	// Fetch lazily iterates every item of a cursor-paginated endpoint.
	Fetch(ctx context.Context, path string, params url.Values) iter.Seq2[map[string]any, error]

	// Get issues a single GET and returns the decoded response.
	Get(ctx context.Context, path string, params url.Values) (map[string]any, error)

	// Post issues a single POST and returns the decoded response.
	Post(ctx context.Context, path string, params url.Values) (map[string]any, error)
}

// Sink receives the output stream.
type Sink interface {
	// WriteRecord emits one record of stream.
	WriteRecord(ctx context.Context, stream string, record map[string]any, extractedAt time.Time) error

	// WriteSchema emits the schema of stream.
	WriteSchema(ctx context.Context, stream string, schema map[string]any, keyFields []string) error

	// WriteState emits a checkpoint of the state document.
	WriteState(ctx context.Context, st *state.State) error
}

// StateStore loads and saves the state document between runs.
type StateStore interface {
	// Load returns the stored state, or an empty state on first run.
	Load(ctx context.Context) (*state.State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, st *state.State) error
}

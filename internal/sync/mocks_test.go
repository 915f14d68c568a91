package sync

import (
	"context"
	"iter"
	"net/url"
	"time"

	"github.com/peteski22/adsbridge/internal/catalog"
	"github.com/peteski22/adsbridge/internal/state"
)

// fetchCall records one Fetch request.
type fetchCall struct {
	params url.Values
	path   string
}

// mockAdsClient implements AdsClient for testing.
type mockAdsClient struct {
	consumed   int
	download   func(rawURL string) (map[string]any, error)
	fetch      func(path string, params url.Values) ([]map[string]any, error)
	fetchCalls []fetchCall
	get        func(path string, params url.Values) (map[string]any, error)
	post       func(path string, params url.Values) (map[string]any, error)
	postCalls  []fetchCall
}

// Download returns the configured payload.
func (m *mockAdsClient) Download(_ context.Context, rawURL string) (map[string]any, error) {
	if m.download == nil {
		return nil, nil
	}
	return m.download(rawURL)
}

// Fetch yields the configured items one at a time, counting how many were consumed.
func (m *mockAdsClient) Fetch(_ context.Context, path string, params url.Values) iter.Seq2[map[string]any, error] {
	m.fetchCalls = append(m.fetchCalls, fetchCall{params: params, path: path})

	return func(yield func(map[string]any, error) bool) {
		if m.fetch == nil {
			return
		}
		items, err := m.fetch(path, params)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, item := range items {
			m.consumed++
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Get returns the configured response.
func (m *mockAdsClient) Get(_ context.Context, path string, params url.Values) (map[string]any, error) {
	if m.get == nil {
		return map[string]any{}, nil
	}
	return m.get(path, params)
}

// Post returns the configured response.
func (m *mockAdsClient) Post(_ context.Context, path string, params url.Values) (map[string]any, error) {
	m.postCalls = append(m.postCalls, fetchCall{params: params, path: path})
	if m.post == nil {
		return map[string]any{}, nil
	}
	return m.post(path, params)
}

// sinkRecord is one record written to a mockSink.
type sinkRecord struct {
	record map[string]any
	stream string
}

// mockSink implements Sink for testing.
type mockSink struct {
	err     error
	records []sinkRecord
	schemas []string
	states  []*state.State
}

// WriteRecord captures the record.
func (m *mockSink) WriteRecord(_ context.Context, stream string, record map[string]any, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, sinkRecord{record: record, stream: stream})
	return nil
}

// WriteSchema captures the stream name.
func (m *mockSink) WriteSchema(_ context.Context, stream string, _ map[string]any, _ []string) error {
	m.schemas = append(m.schemas, stream)
	return nil
}

// WriteState captures a copy of the state.
func (m *mockSink) WriteState(_ context.Context, st *state.State) error {
	m.states = append(m.states, st.Clone())
	return nil
}

// recordsOf returns the records written for stream.
func (m *mockSink) recordsOf(stream string) []map[string]any {
	var out []map[string]any
	for _, r := range m.records {
		if r.stream == stream {
			out = append(out, r.record)
		}
	}
	return out
}

// mockStateStore implements StateStore for testing.
type mockStateStore struct {
	loadErr error
	saveErr error
	saves   int
	state   *state.State
}

// Load returns a copy of the stored state.
func (m *mockStateStore) Load(_ context.Context) (*state.State, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.state == nil {
		return state.New(), nil
	}
	return m.state.Clone(), nil
}

// Save stores a copy of the state.
func (m *mockStateStore) Save(_ context.Context, st *state.State) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.state = st.Clone()
	return nil
}

// mustState parses a state document or panics.
func mustState(doc string) *state.State {
	s, err := state.Parse([]byte(doc))
	if err != nil {
		panic(err)
	}
	return s
}

// mustDescriptor looks up a resource or panics.
func mustDescriptor(name string) catalog.Descriptor {
	d, ok := catalog.Lookup(name)
	if !ok {
		panic("unknown resource " + name)
	}
	return d
}

// selectedCatalog returns a catalog with the named streams selected.
func selectedCatalog(names ...string) *catalog.Catalog {
	c := &catalog.Catalog{}
	for _, name := range names {
		c.Streams = append(c.Streams, catalog.Stream{
			Stream:      name,
			TapStreamID: name,
			Metadata: []catalog.MetadataEntry{
				{Breadcrumb: []string{}, Metadata: map[string]any{"selected": true}},
			},
		})
	}
	return c
}

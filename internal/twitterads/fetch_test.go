package twitterads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// newPagedServer serves pages keyed by the incoming cursor and records every cursor requested.
func newPagedServer(t *testing.T, pages map[string]map[string]any) (*httptest.Server, func() []string) {
	t.Helper()

	var mu sync.Mutex
	var cursors []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")

		mu.Lock()
		cursors = append(cursors, cursor)
		mu.Unlock()

		body, ok := pages[cursor]
		if !ok {
			t.Errorf("unexpected cursor %q", cursor)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))

	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), cursors...)
	}
}

func threePages() map[string]map[string]any {
	return map[string]map[string]any{
		"": {
			"data":        []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}},
			"next_cursor": "B",
		},
		"B": {
			"data":        []any{map[string]any{"id": "3"}},
			"next_cursor": "C",
		},
		"C": {
			"data":        []any{map[string]any{"id": "4"}},
			"next_cursor": nil,
		},
	}
}

func TestClient_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("follows cursors until null", func(t *testing.T) {
		t.Parallel()

		server, cursors := newPagedServer(t, threePages())
		defer server.Close()

		client := newTestClient(t, server)

		var ids []string
		for record, err := range client.Fetch(context.Background(), "accounts/abc/campaigns", nil) {
			require.NoError(t, err)
			ids = append(ids, record["id"].(string))
		}

		require.Equal(t, []string{"1", "2", "3", "4"}, ids)
		require.Equal(t, []string{"", "B", "C"}, cursors())
	})

	t.Run("stops requesting when the consumer stops", func(t *testing.T) {
		t.Parallel()

		server, cursors := newPagedServer(t, threePages())
		defer server.Close()

		client := newTestClient(t, server)

		var ids []string
		for record, err := range client.Fetch(context.Background(), "accounts/abc/campaigns", nil) {
			require.NoError(t, err)
			ids = append(ids, record["id"].(string))
			if len(ids) == 2 {
				break
			}
		}

		require.Equal(t, []string{"1", "2"}, ids)
		require.Equal(t, []string{""}, cursors())
	})

	t.Run("keeps caller params and passes them on every page", func(t *testing.T) {
		t.Parallel()

		var counts []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counts = append(counts, r.URL.Query().Get("count"))
			next := any(nil)
			if r.URL.Query().Get("cursor") == "" {
				next = "next"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}, "next_cursor": next})
		}))
		defer server.Close()

		client := newTestClient(t, server)
		params := url.Values{"count": {"200"}}

		for _, err := range client.Fetch(context.Background(), "accounts", params) {
			require.NoError(t, err)
		}

		require.Equal(t, []string{"200", "200"}, counts)
		require.Empty(t, params.Get("cursor"))
	})

	t.Run("yields the error and stops", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		client := newTestClient(t, server)

		var errs []error
		for record, err := range client.Fetch(context.Background(), "accounts", nil) {
			require.Nil(t, record)
			errs = append(errs, err)
		}

		require.Len(t, errs, 1)
		require.ErrorIs(t, errs[0], ErrForbidden)
	})

	t.Run("keeps 64-bit identifiers exact", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"id":1234567890123456789}],"next_cursor":null}`))
		}))
		defer server.Close()

		client := newTestClient(t, server)

		for record, err := range client.Fetch(context.Background(), "accounts", nil) {
			require.NoError(t, err)
			require.Equal(t, json.Number("1234567890123456789"), record["id"])
		}
	})
}

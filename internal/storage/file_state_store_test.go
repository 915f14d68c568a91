package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/adsbridge/internal/state"
)

func TestNewFileStateStore(t *testing.T) {
	t.Parallel()

	store, err := NewFileStateStore("")

	require.Error(t, err)
	require.Contains(t, err.Error(), "state file path is required")
	require.Nil(t, store)
}

func TestFileStateStore_Load(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content     *string
		errMsg      string
		wantSyncing string
		wantErr     bool
	}{
		"missing file is empty state": {
			content: nil,
		},
		"empty file is empty state": {
			content: ptr(""),
		},
		"reads state": {
			content:     ptr(`{"bookmarks":{"accounts":{"acc1":"2024-01-01T00:00:00+0000"}},"currently_syncing":"campaigns"}`),
			wantSyncing: "campaigns",
		},
		"invalid JSON": {
			content: ptr("{"),
			wantErr: true,
			errMsg:  "parsing state file",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "state.json")
			if tc.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tc.content), 0o600))
			}

			store, err := NewFileStateStore(path)
			require.NoError(t, err)

			got, err := store.Load(context.Background())

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got.Bookmarks)
			require.Equal(t, tc.wantSyncing, got.CurrentlySyncing)
		})
	}
}

func TestFileStateStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	store, err := NewFileStateStore(path)
	require.NoError(t, err)

	st := state.New()
	b := state.NewBookmarks(st, nil)
	require.NoError(t, b.Set(context.Background(), "campaigns", "2024-02-01T00:00:00+0000", "acc1", ""))

	require.NoError(t, store.Save(context.Background(), st))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file should be renamed into place")

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024-02-01T00:00:00+0000", state.NewBookmarks(loaded, nil).Get("campaigns", "", "acc1", ""))
}

func TestNoopStateStore(t *testing.T) {
	t.Parallel()

	initial := state.New()
	initial.CurrentlySyncing = "tweets"
	store := NewNoopStateStore(initial)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tweets", loaded.CurrentlySyncing)

	loaded.CurrentlySyncing = "campaigns"
	require.NoError(t, store.Save(context.Background(), loaded))

	again, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tweets", again.CurrentlySyncing)

	empty, err := NewNoopStateStore(nil).Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, empty.Bookmarks)
}

func ptr(s string) *string {
	return &s
}

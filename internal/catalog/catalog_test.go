package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testCatalogJSON = `{
  "streams": [
    {
      "tap_stream_id": "campaigns",
      "stream": "campaigns",
      "key_properties": ["id"],
      "schema": {"type": "object"},
      "metadata": [
        {"breadcrumb": [], "metadata": {"selected": true}},
        {"breadcrumb": ["properties", "id"], "metadata": {"inclusion": "automatic", "selected": false}},
        {"breadcrumb": ["properties", "name"], "metadata": {"selected": true}},
        {"breadcrumb": ["properties", "budget"], "metadata": {"selected": false}},
        {"breadcrumb": ["properties", "legacy"], "metadata": {"inclusion": "unsupported"}}
      ]
    },
    {
      "tap_stream_id": "targeting_criteria",
      "stream": "targeting_criteria",
      "key_properties": ["line_item_id", "id"],
      "schema": {"type": "object"},
      "metadata": [
        {"breadcrumb": [], "metadata": {"selected": true, "parent-tap-stream-id": "line_items"}}
      ]
    },
    {
      "tap_stream_id": "line_items",
      "stream": "line_items",
      "key_properties": ["id"],
      "schema": {"type": "object"},
      "metadata": [
        {"breadcrumb": [], "metadata": {"selected": false}}
      ]
    }
  ]
}`

const testCatalogYAML = `
streams:
  - tap_stream_id: campaigns
    stream: campaigns
    key_properties: [id]
    schema:
      type: object
    metadata:
      - breadcrumb: []
        metadata:
          selected: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content      string
		errMsg       string
		file         string
		wantErr      bool
		wantSelected []string
	}{
		"json catalog": {
			file:         "catalog.json",
			content:      testCatalogJSON,
			wantSelected: []string{"campaigns", "targeting_criteria"},
		},
		"yaml catalog": {
			file:         "catalog.yaml",
			content:      testCatalogYAML,
			wantSelected: []string{"campaigns"},
		},
		"malformed json": {
			file:    "catalog.json",
			content: "{",
			wantErr: true,
			errMsg:  "parsing catalog",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c, err := Load(writeFile(t, tc.file, tc.content))

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			require.ElementsMatch(t, tc.wantSelected, c.Selected().ToSlice())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
	require.Contains(t, err.Error(), "reading catalog")
}

func TestStream_Transform(t *testing.T) {
	t.Parallel()

	var c Catalog
	require.NoError(t, json.Unmarshal([]byte(testCatalogJSON), &c))

	campaigns, ok := c.Stream("campaigns")
	require.True(t, ok)

	got := campaigns.Transform(map[string]any{
		"id":         "c1",
		"name":       "Spring",
		"budget":     100,
		"legacy":     true,
		"account_id": "acc1",
	})

	want := map[string]any{"id": "c1", "name": "Spring", "account_id": "acc1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transform() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"budget", "legacy"}, campaigns.ExcludedFields())

	child, ok := c.Stream("targeting_criteria")
	require.True(t, ok)
	require.Equal(t, "line_items", child.ParentStream())

	record := map[string]any{"id": "t1"}
	require.Equal(t, record, child.Transform(record))

	_, ok = c.Stream("missing")
	require.False(t, ok)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	c := Discover([]string{"campaign_daily"})

	require.Len(t, c.Streams, len(Flatten())+1)
	require.Zero(t, c.Selected().Cardinality())

	child, ok := c.Stream("targeting_tv_shows")
	require.True(t, ok)
	require.Equal(t, "targeting_tv_markets", child.ParentStream())

	campaigns, ok := c.Stream("campaigns")
	require.True(t, ok)
	properties := campaigns.Schema["properties"].(map[string]any)
	require.Contains(t, properties, "account_id")
	require.Contains(t, properties, "updated_at")

	report, ok := c.Stream("campaign_daily")
	require.True(t, ok)
	require.Equal(t, []string{ReportKeyField}, report.KeyProperties)
	require.Contains(t, report.Schema["properties"], ReportReplicationKey)

	// The discovered catalog must round-trip through JSON.
	data, err := json.Marshal(c)
	require.NoError(t, err)
	var decoded Catalog
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Streams, len(c.Streams))
}

package sync

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/adsbridge/internal/catalog"
)

const dailyPayload = `{
	"data_type": "stats",
	"time_series_length": 3,
	"request": {
		"params": {
			"start_time": "2024-02-15T05:00:00Z",
			"end_time": "2024-02-18T05:00:00Z",
			"granularity": "DAY",
			"entity": "CAMPAIGN",
			"placement": "ALL_ON_TWITTER",
			"segmentation_type": "LOCATIONS",
			"country": "96683cc9126741d1"
		}
	},
	"data": [{
		"id": "8fgzf",
		"id_data": [{
			"segment": {"segment_name": "California", "segment_value": "ca-1"},
			"metrics": {
				"impressions": [100, null, 300],
				"clicks": [1, null, 3],
				"mobile_conversion_installs": {
					"post_view": [0, null, 2],
					"post_engagement": [1, null, 0]
				},
				"billed_charge_local_micro": null
			}
		}]
	}]
}`

func decodePayload(t *testing.T, doc string) map[string]any {
	t.Helper()

	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()

	var payload map[string]any
	require.NoError(t, dec.Decode(&payload))
	return payload
}

func TestReshapeReport(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)

	records, err := reshapeReport(decodePayload(t, dailyPayload), "acc1", loc)

	require.NoError(t, err)
	require.Len(t, records, 2, "all-null buckets are skipped")

	first := records[0]
	require.Equal(t, "acc1", first["account_id"])
	require.Equal(t, "CAMPAIGN", first["entity"])
	require.Equal(t, "8fgzf", first["entity_id"])
	require.Equal(t, "DAY", first["granularity"])
	require.Equal(t, "ALL_ON_TWITTER", first["placement"])
	require.Equal(t, "LOCATIONS", first["segmentation_type"])
	require.Equal(t, "California", first["segment_name"])
	require.Equal(t, "ca-1", first["segment_value"])
	require.Equal(t, "96683cc9126741d1", first["country"])
	require.Equal(t, "2024-02-15T00:00:00-0500", first["start_time"])
	require.Equal(t, "2024-02-16T00:00:00-0500", first["end_time"])
	require.Equal(t, json.Number("100"), first["impressions"])
	require.Equal(t, json.Number("0"), first["mobile_conversion_installs_post_view"])
	require.Equal(t, json.Number("1"), first["mobile_conversion_installs_post_engagement"])
	require.Contains(t, first, "billed_charge_local_micro")
	require.Nil(t, first["billed_charge_local_micro"])

	last := records[1]
	require.Equal(t, "2024-02-17T00:00:00-0500", last["start_time"])
	require.Equal(t, "2024-02-18T00:00:00-0500", last["end_time"])
	require.Equal(t, json.Number("300"), last["impressions"])

	require.NotEmpty(t, first[catalog.ReportKeyField])
	require.NotEqual(t, first[catalog.ReportKeyField], last[catalog.ReportKeyField])
}

func TestReshapeReport_HashKeyIsStable(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)

	a, err := reshapeReport(decodePayload(t, dailyPayload), "acc1", loc)
	require.NoError(t, err)
	b, err := reshapeReport(decodePayload(t, dailyPayload), "acc1", loc)
	require.NoError(t, err)
	other, err := reshapeReport(decodePayload(t, dailyPayload), "acc2", loc)
	require.NoError(t, err)

	require.Equal(t, a[0][catalog.ReportKeyField], b[0][catalog.ReportKeyField])
	require.NotEqual(t, a[0][catalog.ReportKeyField], other[0][catalog.ReportKeyField])
}

func TestReshapeReport_Granularities(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload   string
		wantEnd   []string
		wantStart []string
	}{
		"hourly buckets": {
			payload: `{
				"request": {"params": {"start_time": "2024-02-15T10:00:00Z", "end_time": "2024-02-15T12:00:00Z", "granularity": "HOUR", "entity": "ACCOUNT", "placement": "ALL_ON_TWITTER"}},
				"data": [{"id": "acc1", "id_data": [{"segment": null, "metrics": {"impressions": [5, 6]}}]}]
			}`,
			wantStart: []string{"2024-02-15T10:00:00+0000", "2024-02-15T11:00:00+0000"},
			wantEnd:   []string{"2024-02-15T11:00:00+0000", "2024-02-15T12:00:00+0000"},
		},
		"total is a single bucket over the request range": {
			payload: `{
				"time_series_length": 1,
				"request": {"params": {"start_time": "2024-02-01T00:00:00Z", "end_time": "2024-02-15T00:00:00Z", "granularity": "TOTAL", "entity": "ACCOUNT", "placement": "ALL_ON_TWITTER"}},
				"data": [{"id": "acc1", "id_data": [{"segment": null, "metrics": {"impressions": [500]}}]}]
			}`,
			wantStart: []string{"2024-02-01T00:00:00+0000"},
			wantEnd:   []string{"2024-02-15T00:00:00+0000"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			records, err := reshapeReport(decodePayload(t, tc.payload), "acc1", time.UTC)

			require.NoError(t, err)
			var starts, ends []string
			for _, r := range records {
				starts = append(starts, r["start_time"].(string))
				ends = append(ends, r["end_time"].(string))
				require.Equal(t, "", r["segment_name"])
			}
			require.Equal(t, tc.wantStart, starts)
			require.Equal(t, tc.wantEnd, ends)
		})
	}
}

func TestReshapeReport_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	records, err := reshapeReport(nil, "acc1", time.UTC)
	require.NoError(t, err)
	require.Empty(t, records)

	records, err = reshapeReport(map[string]any{
		"request": map[string]any{"params": map[string]any{
			"start_time": "2024-02-01T00:00:00Z",
			"end_time":   "2024-02-02T00:00:00Z",
		}},
		"data": []any{},
	}, "acc1", time.UTC)
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = reshapeReport(map[string]any{"data": []any{}}, "acc1", time.UTC)
	require.Error(t, err)

	_, err = reshapeReport(map[string]any{
		"request": map[string]any{"params": map[string]any{"start_time": "soon"}},
	}, "acc1", time.UTC)
	require.Error(t, err)
	require.Contains(t, err.Error(), "start_time")
}

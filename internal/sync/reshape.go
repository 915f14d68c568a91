package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/peteski22/adsbridge/internal/catalog"
	"github.com/peteski22/adsbridge/internal/config"
	"github.com/peteski22/adsbridge/internal/state"
)

// dimensionNamespace seeds the name-based UUIDs of report rows.
var dimensionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("adsbridge/report-dimensions"))

// reportParams echoes the job request in a result payload.
type reportParams struct {
	country          string
	endTime          time.Time
	entity           string
	granularity      string
	placement        string
	platform         string
	segmentationType string
	startTime        time.Time
}

// reshapeReport flattens a job result into one record per entity, segment and
// time bucket. A nil or empty payload yields no records.
func reshapeReport(payload map[string]any, accountID string, loc *time.Location) ([]map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	params, err := parseReportParams(payload, loc)
	if err != nil {
		return nil, err
	}

	data, _ := payload["data"].([]any)
	length := intValue(payload["time_series_length"])

	var records []map[string]any
	for _, item := range data {
		entity, _ := item.(map[string]any)
		entityID := asString(entity["id"])

		idData, _ := entity["id_data"].([]any)
		for _, raw := range idData {
			series, _ := raw.(map[string]any)
			segment, _ := series["segment"].(map[string]any)
			metrics := flattenMetrics(series["metrics"])

			n := length
			if n <= 0 {
				n = longestSeries(metrics)
			}
			if params.granularity == config.GranularityTotal {
				n = min(n, 1)
			}

			for i := range n {
				row, ok := bucketMetrics(metrics, i)
				if !ok {
					continue
				}

				start, end := params.bucket(i)
				row["account_id"] = accountID
				row["country"] = params.country
				row["end_time"] = state.FormatTime(end)
				row["entity"] = params.entity
				row["entity_id"] = entityID
				row["granularity"] = params.granularity
				row["placement"] = params.placement
				row["platform"] = params.platform
				row["segment_name"] = asString(segment["segment_name"])
				row["segment_value"] = asString(segment["segment_value"])
				row["segmentation_type"] = params.segmentationType
				row["start_time"] = state.FormatTime(start)
				row[catalog.ReportKeyField] = dimensionHash(row)

				records = append(records, row)
			}
		}
	}
	return records, nil
}

func parseReportParams(payload map[string]any, loc *time.Location) (reportParams, error) {
	request, _ := payload["request"].(map[string]any)
	raw, _ := request["params"].(map[string]any)
	if raw == nil {
		return reportParams{}, errors.New("payload has no request params")
	}

	start, err := state.ParseTime(asString(raw["start_time"]))
	if err != nil {
		return reportParams{}, fmt.Errorf("parsing start_time: %w", err)
	}
	end, err := state.ParseTime(asString(raw["end_time"]))
	if err != nil {
		return reportParams{}, fmt.Errorf("parsing end_time: %w", err)
	}

	return reportParams{
		country:          asString(raw["country"]),
		endTime:          end.In(loc),
		entity:           asString(raw["entity"]),
		granularity:      strings.ToUpper(asString(raw["granularity"])),
		placement:        asString(raw["placement"]),
		platform:         asString(raw["platform"]),
		segmentationType: asString(raw["segmentation_type"]),
		startTime:        start.In(loc),
	}, nil
}

// bucket returns the bounds of the i-th time bucket.
func (p reportParams) bucket(i int) (time.Time, time.Time) {
	if p.granularity == config.GranularityTotal {
		return p.startTime, p.endTime
	}
	start := addUnits(p.startTime, p.granularity, i)
	return start, addUnits(start, p.granularity, 1)
}

// flattenMetrics maps each metric to its series. Nested metric groups such as
// conversion breakdowns become name_subname.
func flattenMetrics(v any) map[string][]any {
	out := map[string][]any{}
	metrics, _ := v.(map[string]any)
	for name, value := range metrics {
		switch value := value.(type) {
		case []any:
			out[name] = value
		case map[string]any:
			for sub, nested := range value {
				if series, ok := nested.([]any); ok {
					out[name+"_"+sub] = series
				}
			}
		case nil:
			out[name] = nil
		}
	}
	return out
}

func longestSeries(metrics map[string][]any) int {
	n := 0
	for _, series := range metrics {
		n = max(n, len(series))
	}
	return n
}

// bucketMetrics picks the i-th value of every metric. ok is false when every
// value is null.
func bucketMetrics(metrics map[string][]any, i int) (map[string]any, bool) {
	row := make(map[string]any, len(metrics)+13)
	ok := false
	for name, series := range metrics {
		var value any
		if i < len(series) {
			value = series[i]
		}
		if value != nil {
			ok = true
		}
		row[name] = value
	}
	return row, ok
}

// dimensionHash derives a stable key from the dimensions of a row.
func dimensionHash(row map[string]any) string {
	dims := []string{
		"account_id",
		"entity",
		"entity_id",
		"granularity",
		"placement",
		"segmentation_type",
		"segment_name",
		"segment_value",
		"country",
		"platform",
		"start_time",
		"end_time",
	}

	parts := make([]string, 0, len(dims))
	for _, dim := range dims {
		parts = append(parts, dim+"="+asString(row[dim]))
	}
	return uuid.NewSHA1(dimensionNamespace, []byte(strings.Join(parts, "|"))).String()
}

func intValue(v any) int {
	switch v := v.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

package catalog

import "strings"

// Report stream fields shared by every report.
const (
	ReportKeyField       = "__sdc_dimensions_hash_key"
	ReportReplicationKey = "end_time"
)

// reportDimensions are the dimension fields carried by every report record.
var reportDimensions = []string{
	"account_id",
	"country",
	"entity",
	"entity_id",
	"granularity",
	"placement",
	"platform",
	"segment_name",
	"segment_value",
	"segmentation_type",
	"start_time",
}

// Discover builds a catalog describing every resource and the named reports.
// Nothing is selected.
func Discover(reports []string) *Catalog {
	c := &Catalog{}

	for _, d := range Flatten() {
		c.Streams = append(c.Streams, discoverResource(d))
	}
	for _, name := range reports {
		c.Streams = append(c.Streams, discoverReport(name))
	}

	return c
}

func discoverResource(d Descriptor) Stream {
	properties := map[string]any{}
	for _, key := range d.KeyFields {
		properties[key] = property(false)
	}
	if d.ReplicationKey != "" {
		properties[d.ReplicationKey] = property(true)
	}
	if strings.Contains(d.Path, PlaceholderAccountID) {
		properties["account_id"] = property(false)
	}

	streamMeta := map[string]any{
		metaForcedReplication: string(d.Replication),
		metaTableKeys:         d.KeyFields,
	}
	if d.ReplicationKey != "" {
		streamMeta[metaValidKeys] = []string{d.ReplicationKey}
	}
	if d.Parent != "" {
		streamMeta[metaParentStream] = d.Parent
	}

	return newStream(d.Name, d.KeyFields, properties, streamMeta)
}

func discoverReport(name string) Stream {
	properties := map[string]any{
		ReportKeyField:       property(false),
		ReportReplicationKey: property(true),
	}
	for _, dim := range reportDimensions {
		properties[dim] = property(dim == "start_time")
	}

	keys := []string{ReportKeyField}
	streamMeta := map[string]any{
		metaForcedReplication: string(Incremental),
		metaTableKeys:         keys,
		metaValidKeys:         []string{ReportReplicationKey},
	}

	return newStream(name, keys, properties, streamMeta)
}

func newStream(name string, keys []string, properties, streamMeta map[string]any) Stream {
	metadata := []MetadataEntry{{Breadcrumb: []string{}, Metadata: streamMeta}}
	for _, key := range keys {
		metadata = append(metadata, MetadataEntry{
			Breadcrumb: []string{"properties", key},
			Metadata:   map[string]any{metaInclusion: inclusionAutomatic},
		})
	}

	return Stream{
		KeyProperties: keys,
		Metadata:      metadata,
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": true,
			"properties":           properties,
		},
		Stream:      name,
		TapStreamID: name,
	}
}

func property(dateTime bool) map[string]any {
	p := map[string]any{"type": []string{"null", "string"}}
	if dateTime {
		p["format"] = "date-time"
	}
	return p
}

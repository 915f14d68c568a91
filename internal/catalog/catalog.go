package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

// Metadata keys used in catalog entries.
const (
	metaForcedReplication = "forced-replication-method"
	metaInclusion         = "inclusion"
	metaParentStream      = "parent-tap-stream-id"
	metaSelected          = "selected"
	metaTableKeys         = "table-key-properties"
	metaValidKeys         = "valid-replication-keys"

	inclusionAutomatic   = "automatic"
	inclusionUnsupported = "unsupported"
)

// Catalog lists the streams available to a run and which of them are selected.
type Catalog struct {
	Streams []Stream `json:"streams" yaml:"streams"`
}

// Stream is one catalog entry.
type Stream struct {
	KeyProperties []string        `json:"key_properties" yaml:"key_properties"`
	Metadata      []MetadataEntry `json:"metadata" yaml:"metadata"`
	Schema        map[string]any  `json:"schema" yaml:"schema"`
	Stream        string          `json:"stream" yaml:"stream"`
	TapStreamID   string          `json:"tap_stream_id" yaml:"tap_stream_id"`
}

// MetadataEntry annotates the stream (empty breadcrumb) or one of its properties.
type MetadataEntry struct {
	Breadcrumb []string       `json:"breadcrumb" yaml:"breadcrumb"`
	Metadata   map[string]any `json:"metadata" yaml:"metadata"`
}

// Load reads a catalog from a JSON or YAML file, chosen by extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var c Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	return &c, nil
}

// Stream returns the entry for name.
func (c *Catalog) Stream(name string) (*Stream, bool) {
	for i := range c.Streams {
		if c.Streams[i].TapStreamID == name {
			return &c.Streams[i], true
		}
	}
	return nil, false
}

// Selected returns the names of all selected streams.
func (c *Catalog) Selected() mapset.Set[string] {
	selected := mapset.NewThreadUnsafeSet[string]()
	for _, s := range c.Streams {
		if s.IsSelected() {
			selected.Add(s.TapStreamID)
		}
	}
	return selected
}

// IsSelected reports whether the stream is selected.
func (s *Stream) IsSelected() bool {
	selected, _ := s.streamMetadata()[metaSelected].(bool)
	return selected
}

// ParentStream returns the parent stream named in the stream metadata.
func (s *Stream) ParentStream() string {
	parent, _ := s.streamMetadata()[metaParentStream].(string)
	return parent
}

// ExcludedFields returns the properties deselected in the catalog, sorted.
// Automatic properties are never excluded.
func (s *Stream) ExcludedFields() []string {
	var fields []string
	for _, entry := range s.Metadata {
		if len(entry.Breadcrumb) != 2 || entry.Breadcrumb[0] != "properties" {
			continue
		}

		inclusion, _ := entry.Metadata[metaInclusion].(string)
		selected, hasSelected := entry.Metadata[metaSelected].(bool)
		switch {
		case inclusion == inclusionAutomatic:
		case inclusion == inclusionUnsupported, hasSelected && !selected:
			fields = append(fields, entry.Breadcrumb[1])
		}
	}
	slices.Sort(fields)
	return fields
}

// Transform drops the deselected fields of record. Fields the catalog does
// not mention are kept.
func (s *Stream) Transform(record map[string]any) map[string]any {
	excluded := s.ExcludedFields()
	if len(excluded) == 0 {
		return record
	}

	out := make(map[string]any, len(record))
	for k, v := range record {
		if _, found := slices.BinarySearch(excluded, k); !found {
			out[k] = v
		}
	}
	return out
}

func (s *Stream) streamMetadata() map[string]any {
	for _, entry := range s.Metadata {
		if len(entry.Breadcrumb) == 0 {
			return entry.Metadata
		}
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/peteski22/adsbridge/internal/catalog"
)

// Report granularities.
const (
	GranularityDay   = "DAY"
	GranularityHour  = "HOUR"
	GranularityTotal = "TOTAL"
)

// NoSegment is the segment of an unsegmented report.
const NoSegment = "NO_SEGMENT"

// reportEntities are the entity types reports can be requested for.
var reportEntities = []string{
	"ACCOUNT",
	"CAMPAIGN",
	"FUNDING_INSTRUMENT",
	"LINE_ITEM",
	"MEDIA_CREATIVE",
	"ORGANIC_TWEET",
	"PROMOTED_ACCOUNT",
	"PROMOTED_TWEET",
}

// reportSegments are the accepted segmentation types.
var reportSegments = []string{
	NoSegment,
	"AGE",
	"APP_STORE_CATEGORY",
	"AUDIENCES",
	"CONVERSATIONS",
	"CONVERSION_TAGS",
	"DEVICES",
	"EVENTS",
	"GENDER",
	"INTERESTS",
	"KEYWORDS",
	"LANGUAGES",
	"LOCATIONS",
	"METROS",
	"PLATFORMS",
	"PLATFORM_VERSIONS",
	"POSTAL_CODES",
	"REGIONS",
	"SIMILAR_TO_FOLLOWERS_OF_USER",
	"TV_SHOWS",
}

// Report defines one analytics report stream.
type Report struct {
	// Entity is the entity type reported on, e.g. CAMPAIGN.
	Entity string `mapstructure:"entity" json:"entity"`

	// Granularity is HOUR, DAY or TOTAL.
	Granularity string `mapstructure:"granularity" json:"granularity"`

	// Name is the stream name of the report.
	Name string `mapstructure:"name" json:"name"`

	// ReportName is accepted as an alias for Name.
	ReportName string `mapstructure:"report_name" json:"report_name,omitempty"`

	// Segment is the segmentation type, or NO_SEGMENT.
	Segment string `mapstructure:"segment" json:"segment"`
}

// Segmented reports whether the report is split by a segment.
func (r Report) Segmented() bool {
	return r.Segment != "" && r.Segment != NoSegment
}

// normalize applies defaults and canonical casing.
func (r *Report) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = strings.TrimSpace(r.ReportName)
	}
	r.Entity = strings.ToUpper(strings.TrimSpace(r.Entity))
	r.Segment = strings.ToUpper(strings.TrimSpace(r.Segment))
	if r.Segment == "" {
		r.Segment = NoSegment
	}
	r.Granularity = strings.ToUpper(strings.TrimSpace(r.Granularity))
	if r.Granularity == "" {
		r.Granularity = GranularityDay
	}
}

func (r *Report) validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	} else if _, ok := catalog.Lookup(r.Name); ok {
		errs = append(errs, fmt.Errorf("name %q is already used by a resource stream", r.Name))
	}
	if !slices.Contains(reportEntities, r.Entity) {
		errs = append(errs, fmt.Errorf("unknown entity %q", r.Entity))
	}
	if !slices.Contains(reportSegments, r.Segment) {
		errs = append(errs, fmt.Errorf("unknown segment %q", r.Segment))
	}
	switch r.Granularity {
	case GranularityDay, GranularityHour, GranularityTotal:
	default:
		errs = append(errs, fmt.Errorf("unknown granularity %q", r.Granularity))
	}
	return errors.Join(errs...)
}

// Package catalog defines the static set of replicable Ads API resources and
// the selection catalog that decides which of them a run emits.
package catalog

import "time"

// Kind distinguishes how a resource is synced.
type Kind int

const (
	// KindPlain is a top-level list endpoint.
	KindPlain Kind = iota

	// KindChild is an endpoint queried with batches of its parent's IDs.
	KindChild

	// KindReport is an asynchronous analytics report.
	KindReport
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindChild:
		return "child"
	case KindReport:
		return "report"
	default:
		return "unknown"
	}
}

// Replication is a resource's replication method.
type Replication string

const (
	// FullTable re-reads the whole resource every run.
	FullTable Replication = "FULL_TABLE"

	// Incremental reads only records at or after the stored watermark.
	Incremental Replication = "INCREMENTAL"
)

// Placeholders substituted into paths and params at sync time.
const (
	PlaceholderAccountID    = "{account_id}"
	PlaceholderAccountIDs   = "{account_ids}"
	PlaceholderCountryCodes = "{country_codes}"
	PlaceholderParentIDs    = "{parent_ids}"
	PlaceholderStartDate    = "{start_date}"
	PlaceholderSubType      = "{sub_type}"
	PlaceholderWithDeleted  = "{with_deleted}"
)

// CountryCodeList is a sub-type sentinel expanded into the configured country codes.
const CountryCodeList = "{country_code_list}"

// DefaultPageSize is the page size requested when none is configured.
const DefaultPageSize = 1000

// Descriptor describes one replicable resource.
type Descriptor struct {
	// BookmarkPerSubType stores one watermark per sub-type instead of one per resource.
	BookmarkPerSubType bool

	// Child is the dependent resource fetched with this resource's IDs.
	Child *Descriptor

	// DatetimeLayout overrides the layout of the replication key. Empty means ISO 8601.
	DatetimeLayout string

	// KeyFields is the primary key. The first field is the parent ID field.
	KeyFields []string

	// Kind is how the resource is synced.
	Kind Kind

	// Name is the unique stream name.
	Name string

	// PageSize is the maximum count per page. Zero means the endpoint is not paged by count.
	PageSize int

	// Params are query parameters, possibly holding placeholders.
	Params map[string]string

	// Parent names the parent resource of a child.
	Parent string

	// ParentChunkSize is the maximum number of parent IDs per child request.
	ParentChunkSize int

	// Path is the endpoint path relative to the API root, possibly holding placeholders.
	Path string

	// Replication is the replication method.
	Replication Replication

	// ReplicationKey is the watermark field for incremental resources.
	ReplicationKey string

	// SubTypes are iterated once each per sync pass.
	SubTypes []string
}

// ParentIDField returns the field collected from records for child requests.
func (d Descriptor) ParentIDField() string {
	if len(d.KeyFields) == 0 {
		return ""
	}
	return d.KeyFields[0]
}

// incremental builds an account-scoped resource sorted by updated_at descending.
func incremental(name, path string) Descriptor {
	return Descriptor{
		KeyFields:      []string{"id"},
		Kind:           KindPlain,
		Name:           name,
		PageSize:       DefaultPageSize,
		Path:           path,
		Replication:    Incremental,
		ReplicationKey: "updated_at",
		Params: map[string]string{
			"sort_by":      "updated_at-desc",
			"with_deleted": PlaceholderWithDeleted,
		},
	}
}

// fullTable builds a reference-data resource.
func fullTable(name, path, key string, pageSize int) Descriptor {
	return Descriptor{
		KeyFields:   []string{key},
		Kind:        KindPlain,
		Name:        name,
		PageSize:    pageSize,
		Path:        path,
		Params:      map[string]string{},
		Replication: FullTable,
	}
}

// Resources returns the top-level resources in sync order. Children hang off
// their parent's Child field. Every call returns fresh values.
func Resources() []Descriptor {
	accounts := incremental("accounts", "accounts")
	accounts.Params["account_ids"] = PlaceholderAccountIDs

	lineItems := incremental("line_items", "accounts/{account_id}/line_items")
	lineItems.Child = &Descriptor{
		KeyFields:       []string{"line_item_id", "id"},
		Kind:            KindChild,
		Name:            "targeting_criteria",
		PageSize:        DefaultPageSize,
		Parent:          "line_items",
		ParentChunkSize: 200,
		Path:            "accounts/{account_id}/targeting_criteria",
		Replication:     FullTable,
		Params: map[string]string{
			"line_item_ids": PlaceholderParentIDs,
			"with_deleted":  PlaceholderWithDeleted,
		},
	}

	events := fullTable("targeting_events", "targeting_criteria/events", "targeting_value", DefaultPageSize)
	events.Params["start_time"] = PlaceholderStartDate
	events.Params["country_codes"] = PlaceholderCountryCodes
	events.Params["event_types"] = "CONFERENCE,HOLIDAY,MUSIC_AND_ENTERTAINMENT,OTHER,POLITICS,RECURRING,SPORTS"

	locations := fullTable("targeting_locations", "targeting_criteria/locations", "targeting_value", DefaultPageSize)
	locations.SubTypes = []string{CountryCodeList}
	locations.Params["country_code"] = PlaceholderSubType

	operators := fullTable("targeting_network_operators", "targeting_criteria/network_operators", "targeting_value", DefaultPageSize)
	operators.SubTypes = []string{CountryCodeList}
	operators.Params["country_code"] = PlaceholderSubType

	tvMarkets := fullTable("targeting_tv_markets", "targeting_criteria/tv_markets", "locale", 0)
	tvMarkets.Child = &Descriptor{
		KeyFields:       []string{"targeting_value"},
		Kind:            KindChild,
		Name:            "targeting_tv_shows",
		PageSize:        50,
		Parent:          "targeting_tv_markets",
		ParentChunkSize: 1,
		Path:            "targeting_criteria/tv_shows",
		Replication:     FullTable,
		Params: map[string]string{
			"locale": PlaceholderParentIDs,
		},
	}

	tweets := incremental("tweets", "accounts/{account_id}/tweets")
	tweets.BookmarkPerSubType = true
	tweets.DatetimeLayout = time.RubyDate
	tweets.ReplicationKey = "created_at"
	tweets.SubTypes = []string{"PUBLISHED", "SCHEDULED"}
	tweets.Params = map[string]string{
		"sort_by":       "created_at-desc",
		"timeline_type": "ALL",
		"tweet_type":    PlaceholderSubType,
		"with_deleted":  PlaceholderWithDeleted,
	}

	return []Descriptor{
		accounts,
		incremental("account_media", "accounts/{account_id}/account_media"),
		fullTable("advertiser_business_categories", "advertiser_business_categories", "id", 0),
		fullTable("bidding_rules", "bidding_rules", "currency", 0),
		incremental("campaigns", "accounts/{account_id}/campaigns"),
		incremental("cards_website", "accounts/{account_id}/cards/website"),
		incremental("cards_video_website", "accounts/{account_id}/cards/video_website"),
		incremental("cards_image_app_download", "accounts/{account_id}/cards/image_app_download"),
		incremental("cards_video_app_download", "accounts/{account_id}/cards/video_app_download"),
		incremental("cards_poll", "accounts/{account_id}/cards/poll"),
		incremental("cards_image_conversation", "accounts/{account_id}/cards/image_conversation"),
		incremental("cards_video_conversation", "accounts/{account_id}/cards/video_conversation"),
		incremental("cards_image_direct_message", "accounts/{account_id}/cards/image_direct_message"),
		incremental("cards_video_direct_message", "accounts/{account_id}/cards/video_direct_message"),
		fullTable("content_categories", "content_categories", "id", DefaultPageSize),
		incremental("funding_instruments", "accounts/{account_id}/funding_instruments"),
		fullTable("iab_categories", "iab_categories", "id", 0),
		lineItems,
		incremental("line_item_apps", "accounts/{account_id}/line_item_apps"),
		incremental("media_creatives", "accounts/{account_id}/media_creatives"),
		incremental("preroll_call_to_actions", "accounts/{account_id}/preroll_call_to_actions"),
		incremental("promoted_accounts", "accounts/{account_id}/promoted_accounts"),
		incremental("promoted_tweets", "accounts/{account_id}/promoted_tweets"),
		incremental("promotable_users", "accounts/{account_id}/promotable_users"),
		incremental("scheduled_promoted_tweets", "accounts/{account_id}/scheduled_promoted_tweets"),
		incremental("tailored_audiences", "accounts/{account_id}/tailored_audiences"),
		fullTable("targeting_app_store_categories", "targeting_criteria/app_store_categories", "targeting_value", 0),
		fullTable("targeting_conversations", "targeting_criteria/conversations", "targeting_value", DefaultPageSize),
		fullTable("targeting_devices", "targeting_criteria/devices", "targeting_value", DefaultPageSize),
		events,
		fullTable("targeting_interests", "targeting_criteria/interests", "targeting_value", DefaultPageSize),
		fullTable("targeting_languages", "targeting_criteria/languages", "targeting_value", DefaultPageSize),
		locations,
		operators,
		fullTable("targeting_platform_versions", "targeting_criteria/platform_versions", "targeting_value", 0),
		fullTable("targeting_platforms", "targeting_criteria/platforms", "targeting_value", DefaultPageSize),
		tvMarkets,
		tweets,
	}
}

// Flatten returns every resource, each child directly after its parent.
func Flatten() []Descriptor {
	var out []Descriptor
	for _, d := range Resources() {
		out = append(out, d)
		if d.Child != nil {
			out = append(out, *d.Child)
		}
	}
	return out
}

// Lookup finds a resource or child by name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Flatten() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/catalog"
	"github.com/peteski22/adsbridge/internal/state"
	"github.com/peteski22/adsbridge/internal/twitterads"
)

// EndpointConfig holds the configuration for creating an EndpointEngine.
type EndpointConfig struct {
	// Catalog supplies schemas and field selection. Optional.
	Catalog *catalog.Catalog

	// Client is the Ads API client.
	Client AdsClient

	// CountryCodes expand the country-code sub-type and {country_codes} placeholder.
	CountryCodes []string

	// Logger is the structured logger. Defaults to a no-op logger.
	Logger *zap.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// PageSize resolves the configured page size of a resource. Defaults to catalog.DefaultPageSize.
	PageSize func(resource string) (int, error)

	// Sink receives records.
	Sink Sink

	// WithDeleted is "true" or "false".
	WithDeleted string
}

func (c *EndpointConfig) validate() error {
	var errs []error
	if c.Client == nil {
		errs = append(errs, errors.New("ads client is required"))
	}
	if c.Sink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	return errors.Join(errs...)
}

// SyncRequest is one resource pass for one account.
type SyncRequest struct {
	// AccountID is substituted for {account_id}.
	AccountID string

	// Bookmarks reads and advances watermarks.
	Bookmarks *state.Bookmarks

	// Descriptor is the resource to sync.
	Descriptor catalog.Descriptor

	// Emit controls whether records are written and bookmarked. A parent synced
	// only to collect IDs for its selected child runs with Emit false.
	Emit bool

	// ParentIDs are substituted for {parent_ids} in a child request.
	ParentIDs []string

	// SelectedChildren names the child resources to recurse into.
	SelectedChildren mapset.Set[string]

	// StartDate is the watermark used when no bookmark exists.
	StartDate string
}

// EndpointResult reports the outcome of a resource pass.
type EndpointResult struct {
	// ChildRecords counts the records emitted by child resources.
	ChildRecords int

	// OutOfOrder counts records whose replication key exceeded the first record's.
	OutOfOrder int

	// ParentIDs are the distinct parent ID field values seen, in order.
	ParentIDs []string

	// Records counts the records of this resource.
	Records int
}

// EndpointEngine syncs list endpoints described by the resource catalogue.
type EndpointEngine struct {
	catalog      *catalog.Catalog
	client       AdsClient
	countryCodes []string
	logger       *zap.Logger
	now          func() time.Time
	pageSize     func(resource string) (int, error)
	sink         Sink
	withDeleted  string
}

// NewEndpointEngine creates a new EndpointEngine.
func NewEndpointEngine(cfg EndpointConfig) (*EndpointEngine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid endpoint config: %w", err)
	}

	e := &EndpointEngine{
		catalog:      cfg.Catalog,
		client:       cfg.Client,
		countryCodes: cfg.CountryCodes,
		logger:       cfg.Logger,
		now:          cfg.Now,
		pageSize:     cfg.PageSize,
		sink:         cfg.Sink,
		withDeleted:  cfg.WithDeleted,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.pageSize == nil {
		e.pageSize = func(string) (int, error) { return catalog.DefaultPageSize, nil }
	}
	if e.withDeleted == "" {
		e.withDeleted = "true"
	}

	return e, nil
}

// subTypeMark tracks the watermark candidate of one sub-type pass.
type subTypeMark struct {
	max     time.Time
	prior   time.Time
	records int
	seen    bool
}

// subTypeResult is the outcome of one sub-type pass.
type subTypeResult struct {
	mark       *subTypeMark
	outOfOrder int
	parentIDs  []string
}

// Sync runs one pass of a resource: every sub-type, then the selected child in
// chunks of parent IDs, then the watermark write.
//
// Records are expected newest first. The first record's replication key is
// taken as the new watermark and the sequence stops at the first record older
// than the prior watermark.
func (e *EndpointEngine) Sync(ctx context.Context, req SyncRequest) (EndpointResult, error) {
	d := req.Descriptor
	logger := e.logger.With(zap.String("stream", d.Name), zap.String("account_id", req.AccountID))

	var result EndpointResult
	if req.Bookmarks == nil {
		return result, errors.New("bookmarks are required")
	}

	seenParents := mapset.NewThreadUnsafeSet[string]()
	marks := map[string]*subTypeMark{}
	var order []string

	for _, subType := range e.subTypes(d) {
		pass, err := e.syncSubType(ctx, logger, req, subType)
		if err != nil {
			return result, err
		}
		marks[subType] = pass.mark
		order = append(order, subType)

		result.Records += pass.mark.records
		result.OutOfOrder += pass.outOfOrder
		for _, id := range pass.parentIDs {
			if !seenParents.Contains(id) {
				seenParents.Add(id)
				result.ParentIDs = append(result.ParentIDs, id)
			}
		}
	}

	if child := d.Child; child != nil && req.SelectedChildren != nil && req.SelectedChildren.Contains(child.Name) {
		n, err := e.syncChild(ctx, logger, req, *child, result.ParentIDs)
		if err != nil {
			return result, err
		}
		result.ChildRecords += n
	}

	if d.ReplicationKey == "" || !req.Emit {
		return result, nil
	}

	if d.BookmarkPerSubType {
		for _, subType := range order {
			if err := e.writeBookmark(ctx, logger, req, subType, marks[subType]); err != nil {
				return result, err
			}
		}
		return result, nil
	}

	combined := &subTypeMark{}
	for _, subType := range order {
		m := marks[subType]
		combined.prior = m.prior
		combined.records += m.records
		if m.seen && (!combined.seen || m.max.After(combined.max)) {
			combined.max = m.max
			combined.seen = true
		}
	}
	if err := e.writeBookmark(ctx, logger, req, "", combined); err != nil {
		return result, err
	}

	return result, nil
}

func (e *EndpointEngine) syncSubType(
	ctx context.Context,
	logger *zap.Logger,
	req SyncRequest,
	subType string,
) (subTypeResult, error) {
	d := req.Descriptor
	if subType != "" {
		logger = logger.With(zap.String("sub_type", subType))
	}

	path, params, err := e.resolve(req, subType)
	if err != nil {
		return subTypeResult{}, err
	}

	mark := &subTypeMark{}
	pass := subTypeResult{mark: mark}
	if d.ReplicationKey != "" {
		prior := req.Bookmarks.Get(d.Name, req.StartDate, req.AccountID, e.bookmarkSubKey(d, subType))
		if mark.prior, err = state.ParseTime(prior); err != nil {
			return subTypeResult{}, fmt.Errorf("parsing %s watermark: %w", d.Name, err)
		}
	}

	logger.Debug("requesting resource", zap.String("path", path), zap.String("params", params.Encode()))

	extractedAt := e.now()
	parentField := d.ParentIDField()

	for record, err := range e.client.Fetch(ctx, path, params) {
		if err != nil {
			if twitterads.IsInvalidServiceLevel(err) {
				logger.Warn("account service level does not support resource, skipping", zap.Error(err))
				break
			}
			return subTypeResult{}, fmt.Errorf("fetching %s: %w", d.Name, err)
		}
		if len(record) == 0 {
			break
		}

		if d.ReplicationKey != "" {
			value, ok := e.replicationValue(logger, d, record)
			if !ok {
				value = mark.prior
			}
			switch {
			case ok && !mark.seen:
				mark.max, mark.seen = value, true
			case ok && value.After(mark.max):
				pass.outOfOrder++
				logger.Warn("record is newer than the first record of the pass, raising watermark",
					zap.Time("value", value),
					zap.Time("watermark", mark.max))
				mark.max = value
			}
			if value.Before(mark.prior) {
				logger.Debug("reached records older than the watermark", zap.Time("watermark", mark.prior))
				break
			}
		}

		for _, key := range d.KeyFields {
			if isEmpty(record[key]) {
				logger.Warn("record is missing key field", zap.String("field", key))
			}
		}

		if id := asString(record[parentField]); id != "" {
			pass.parentIDs = append(pass.parentIDs, id)
		}

		if req.Emit {
			if err := e.sink.WriteRecord(ctx, d.Name, e.prepare(req, record), extractedAt); err != nil {
				return subTypeResult{}, fmt.Errorf("writing %s record: %w", d.Name, err)
			}
		}

		mark.records++
	}

	logger.Info("finished sub-type pass", zap.Int("records", mark.records))
	return pass, nil
}

func (e *EndpointEngine) syncChild(
	ctx context.Context,
	logger *zap.Logger,
	req SyncRequest,
	child catalog.Descriptor,
	parentIDs []string,
) (int, error) {
	if err := req.Bookmarks.SetCurrentlySyncing(ctx, child.Name); err != nil {
		return 0, fmt.Errorf("marking %s in progress: %w", child.Name, err)
	}

	if err := e.writeSchema(ctx, child); err != nil {
		return 0, err
	}

	total := 0
	for i, ids := range chunk(parentIDs, child.ParentChunkSize) {
		res, err := e.Sync(ctx, SyncRequest{
			AccountID:        req.AccountID,
			Bookmarks:        req.Bookmarks,
			Descriptor:       child,
			Emit:             true,
			ParentIDs:        ids,
			SelectedChildren: req.SelectedChildren,
			StartDate:        req.StartDate,
		})
		if err != nil {
			return total, err
		}
		logger.Debug("finished child chunk",
			zap.String("child", child.Name),
			zap.Int("chunk", i),
			zap.Int("parent_ids", len(ids)),
			zap.Int("records", res.Records))
		total += res.Records + res.ChildRecords
	}

	logger.Info("finished child stream", zap.String("child", child.Name), zap.Int("records", total))

	if err := req.Bookmarks.SetCurrentlySyncing(ctx, req.Descriptor.Name); err != nil {
		return total, fmt.Errorf("marking %s in progress: %w", req.Descriptor.Name, err)
	}
	return total, nil
}

func (e *EndpointEngine) writeSchema(ctx context.Context, d catalog.Descriptor) error {
	var schema map[string]any
	var keys []string
	if e.catalog != nil {
		if s, ok := e.catalog.Stream(d.Name); ok {
			schema, keys = s.Schema, s.KeyProperties
		}
	}
	if keys == nil {
		keys = d.KeyFields
	}
	if err := e.sink.WriteSchema(ctx, d.Name, schema, keys); err != nil {
		return fmt.Errorf("writing %s schema: %w", d.Name, err)
	}
	return nil
}

func (e *EndpointEngine) writeBookmark(
	ctx context.Context,
	logger *zap.Logger,
	req SyncRequest,
	subKey string,
	mark *subTypeMark,
) error {
	d := req.Descriptor
	if mark == nil || mark.records == 0 || !mark.seen {
		logger.Info("no records, keeping watermark", zap.String("sub_type", subKey))
		return nil
	}
	if mark.max.Before(mark.prior) {
		logger.Warn("newest record is older than the watermark, keeping watermark",
			zap.Time("newest", mark.max),
			zap.Time("watermark", mark.prior))
		return nil
	}

	value := state.FormatTime(mark.max)
	if err := req.Bookmarks.Set(ctx, d.Name, value, req.AccountID, subKey); err != nil {
		return fmt.Errorf("writing %s bookmark: %w", d.Name, err)
	}
	logger.Info("advanced watermark", zap.String("sub_type", subKey), zap.String("value", value))
	return nil
}

// subTypes returns the passes of a resource. A resource without sub-types has one pass with an empty sub-type.
func (e *EndpointEngine) subTypes(d catalog.Descriptor) []string {
	switch {
	case len(d.SubTypes) == 0:
		return []string{""}
	case len(d.SubTypes) == 1 && d.SubTypes[0] == catalog.CountryCodeList:
		return e.countryCodes
	default:
		return d.SubTypes
	}
}

func (e *EndpointEngine) bookmarkSubKey(d catalog.Descriptor, subType string) string {
	if d.BookmarkPerSubType {
		return subType
	}
	return ""
}

// resolve substitutes placeholders into the descriptor's path and params.
func (e *EndpointEngine) resolve(req SyncRequest, subType string) (string, url.Values, error) {
	d := req.Descriptor
	parentIDs := strings.Join(req.ParentIDs, ",")

	replacer := strings.NewReplacer(
		catalog.PlaceholderAccountID, req.AccountID,
		catalog.PlaceholderAccountIDs, req.AccountID,
		catalog.PlaceholderCountryCodes, strings.Join(e.countryCodes, ","),
		catalog.PlaceholderParentIDs, parentIDs,
		catalog.PlaceholderStartDate, req.StartDate,
		catalog.PlaceholderSubType, subType,
		catalog.PlaceholderWithDeleted, e.withDeleted,
	)

	params := url.Values{}
	for key, value := range d.Params {
		params.Set(key, replacer.Replace(value))
	}

	if d.PageSize > 0 {
		size, err := e.pageSize(d.Name)
		if err != nil {
			return "", nil, fmt.Errorf("resolving %s page size: %w", d.Name, err)
		}
		params.Set("count", strconv.Itoa(min(size, d.PageSize)))
	}

	return replacer.Replace(d.Path), params, nil
}

// replicationValue parses the record's replication key. ok is false when the
// field is absent or unparseable.
func (e *EndpointEngine) replicationValue(logger *zap.Logger, d catalog.Descriptor, record map[string]any) (time.Time, bool) {
	raw, _ := record[d.ReplicationKey].(string)
	if raw == "" {
		logger.Info("record has no replication key value", zap.String("field", d.ReplicationKey))
		return time.Time{}, false
	}

	var t time.Time
	var err error
	if d.DatetimeLayout != "" {
		t, err = time.Parse(d.DatetimeLayout, raw)
	} else {
		t, err = state.ParseTime(raw)
	}
	if err != nil {
		logger.Warn("unparseable replication key value", zap.String("field", d.ReplicationKey), zap.Error(err))
		return time.Time{}, false
	}
	return t, true
}

// prepare shapes a record for output: the replication key of resources with a
// non-standard layout becomes RFC 3339, account-scoped records gain account_id
// and deselected fields are dropped.
func (e *EndpointEngine) prepare(req SyncRequest, record map[string]any) map[string]any {
	d := req.Descriptor
	out := maps.Clone(record)

	if d.DatetimeLayout != "" {
		if raw, ok := out[d.ReplicationKey].(string); ok {
			if t, err := time.Parse(d.DatetimeLayout, raw); err == nil {
				out[d.ReplicationKey] = t.Format(time.RFC3339)
			}
		}
	}

	if strings.Contains(d.Path, catalog.PlaceholderAccountID) {
		out["account_id"] = req.AccountID
	}

	if e.catalog != nil {
		if s, ok := e.catalog.Stream(d.Name); ok {
			out = s.Transform(out)
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

// asString renders a scalar field, which the API may return as a string or a number.
func asString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/catalog"
	"github.com/peteski22/adsbridge/internal/config"
	"github.com/peteski22/adsbridge/internal/state"
)

// Report job limits and defaults.
const (
	defaultMaxPolls     = 20
	defaultPollInterval = 15 * time.Second
	entityIDsPerJob     = 20
	lookupPageSize      = 1000
)

// Placements reports are requested for.
const (
	placementAllOnTwitter     = "ALL_ON_TWITTER"
	placementPublisherNetwork = "PUBLISHER_NETWORK"
)

// Async job statuses.
const (
	jobStatusProcessing = "PROCESSING"
	jobStatusQueued     = "QUEUED"
	jobStatusSuccess    = "SUCCESS"
	jobStatusUploading  = "UPLOADING"
)

var placements = []string{placementAllOnTwitter, placementPublisherNetwork}

var allMetricGroups = []string{
	"ENGAGEMENT",
	"BILLING",
	"VIDEO",
	"MEDIA",
	"WEB_CONVERSION",
	"MOBILE_CONVERSION",
	"LIFE_TIME_VALUE_MOBILE_CONVERSION",
}

// Segments that are requested once per country or per platform.
var (
	countrySegments  = []string{"LOCATIONS", "METROS", "POSTAL_CODES", "REGIONS"}
	platformSegments = []string{"DEVICES", "PLATFORM_VERSIONS"}
)

// ReportConfig holds the configuration for creating a ReportEngine.
type ReportConfig struct {
	// AttributionWindow is the number of trailing days always re-fetched.
	AttributionWindow int

	// Catalog supplies schemas and field selection. Optional.
	Catalog *catalog.Catalog

	// Client is the Ads API client.
	Client AdsClient

	// Logger is the structured logger. Defaults to a no-op logger.
	Logger *zap.Logger

	// MaxPolls bounds the job status checks per report. Defaults to 20.
	MaxPolls int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// PollInterval is the wait before each job status check. Defaults to 15s.
	PollInterval time.Duration

	// Sink receives records.
	Sink Sink

	// Sleep waits between polls. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *ReportConfig) validate() error {
	var errs []error
	if c.Client == nil {
		errs = append(errs, errors.New("ads client is required"))
	}
	if c.Sink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	if c.AttributionWindow < 0 {
		errs = append(errs, errors.New("attribution window cannot be negative"))
	}
	return errors.Join(errs...)
}

// ReportRequest is one report run for one account.
type ReportRequest struct {
	// AccountID is the account reported on.
	AccountID string

	// Bookmarks reads and advances the report watermark.
	Bookmarks *state.Bookmarks

	// CountryIDs are the targeting values of the configured countries.
	CountryIDs []string

	// PlatformIDs are the targeting values of every platform.
	PlatformIDs []string

	// Report is the report definition.
	Report config.Report

	// StartDate is the watermark used when no bookmark exists.
	StartDate string
}

// ReportResult reports the outcome of a report run.
type ReportResult struct {
	// JobsFailed counts jobs that ended in a status other than SUCCESS.
	JobsFailed int

	// JobsSubmitted counts submitted jobs.
	JobsSubmitted int

	// JobsTimedOut counts jobs still running when polling gave up.
	JobsTimedOut int

	// Records counts emitted records.
	Records int
}

// entitySet is the entities of one placement to report on over one range.
type entitySet struct {
	endTime   string
	entityIDs []string
	placement string
	startTime string
}

// ReportEngine runs asynchronous analytics reports.
type ReportEngine struct {
	attributionWindow int
	catalog           *catalog.Catalog
	client            AdsClient
	logger            *zap.Logger
	maxPolls          int
	now               func() time.Time
	pollInterval      time.Duration
	sink              Sink
	sleep             func(ctx context.Context, d time.Duration) error
	timezones         *otter.Cache[string, *time.Location]
}

// NewReportEngine creates a new ReportEngine.
func NewReportEngine(cfg ReportConfig) (*ReportEngine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid report config: %w", err)
	}

	timezones, err := otter.New(&otter.Options[string, *time.Location]{
		MaximumSize:      1000,
		ExpiryCalculator: otter.ExpiryWriting[string, *time.Location](time.Hour),
	})
	if err != nil {
		return nil, fmt.Errorf("creating timezone cache: %w", err)
	}

	e := &ReportEngine{
		attributionWindow: cfg.AttributionWindow,
		catalog:           cfg.Catalog,
		client:            cfg.Client,
		logger:            cfg.Logger,
		maxPolls:          cfg.MaxPolls,
		now:               cfg.Now,
		pollInterval:      cfg.PollInterval,
		sink:              cfg.Sink,
		sleep:             cfg.Sleep,
		timezones:         timezones,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.maxPolls <= 0 {
		e.maxPolls = defaultMaxPolls
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}

	return e, nil
}

// Sync runs a report for one account: windows, entity lookup, job submission,
// polling, download and emit. The watermark advances to the latest end_time
// seen, and only when every job succeeded.
func (e *ReportEngine) Sync(ctx context.Context, req ReportRequest) (ReportResult, error) {
	r := req.Report
	logger := e.logger.With(zap.String("report", r.Name), zap.String("account_id", req.AccountID))

	var result ReportResult
	if req.Bookmarks == nil {
		return result, errors.New("bookmarks are required")
	}

	loc, err := e.timezone(ctx, req.AccountID)
	if err != nil {
		return result, err
	}

	groups, segment := metricGroups(r.Entity, r.Segment)

	last, err := state.ParseTime(req.Bookmarks.Get(r.Name, req.StartDate, req.AccountID, ""))
	if err != nil {
		return result, fmt.Errorf("parsing %s watermark: %w", r.Name, err)
	}
	last = last.In(loc)
	now := e.now().In(loc)

	abs := absoluteWindow(last, now, r.Granularity, e.attributionWindow)
	logger.Info("starting report",
		zap.String("entity", r.Entity),
		zap.String("segment", segment),
		zap.String("granularity", r.Granularity),
		zap.String("timezone", loc.String()),
		zap.Time("start", abs.start),
		zap.Time("end", abs.end))

	var sets []entitySet
	for _, w := range splitWindows(abs, windowSpanDays(segment != "")) {
		windowSets, err := e.entitySets(ctx, logger, req, w)
		if err != nil {
			return result, err
		}
		sets = append(sets, windowSets...)
	}

	jobIDs, err := e.submitJobs(ctx, logger, req, sets, groups, segment)
	if err != nil {
		return result, err
	}
	result.JobsSubmitted = len(jobIDs)

	urls, failed, timedOut, err := e.pollJobs(ctx, logger, req.AccountID, jobIDs)
	if err != nil {
		return result, err
	}
	result.JobsFailed = failed
	result.JobsTimedOut = timedOut

	var stream *catalog.Stream
	if e.catalog != nil {
		stream, _ = e.catalog.Stream(r.Name)
	}

	maxEnd := last
	for _, u := range urls {
		payload, err := e.client.Download(ctx, u)
		if err != nil {
			return result, fmt.Errorf("downloading %s job result: %w", r.Name, err)
		}

		records, err := reshapeReport(payload, req.AccountID, loc)
		if err != nil {
			return result, fmt.Errorf("reshaping %s job result: %w", r.Name, err)
		}
		if len(records) == 0 {
			logger.Warn("job result has no data", zap.String("url", u))
			continue
		}

		extractedAt := e.now()
		for _, record := range records {
			if end, err := state.ParseTime(asString(record[catalog.ReportReplicationKey])); err == nil && end.After(maxEnd) {
				maxEnd = end
			}
			if stream != nil {
				record = stream.Transform(record)
			}
			if err := e.sink.WriteRecord(ctx, r.Name, record, extractedAt); err != nil {
				return result, fmt.Errorf("writing %s record: %w", r.Name, err)
			}
			result.Records++
		}
	}

	switch {
	case failed+timedOut > 0:
		logger.Warn("report incomplete, keeping watermark",
			zap.Int("jobs_failed", failed),
			zap.Int("jobs_timed_out", timedOut))
	case maxEnd.After(last):
		value := state.FormatTime(maxEnd)
		if err := req.Bookmarks.Set(ctx, r.Name, value, req.AccountID, ""); err != nil {
			return result, fmt.Errorf("writing %s bookmark: %w", r.Name, err)
		}
		logger.Info("advanced watermark", zap.String("value", value))
	}

	logger.Info("finished report",
		zap.Int("records", result.Records),
		zap.Int("jobs_submitted", result.JobsSubmitted))
	return result, nil
}

// timezone returns the account's reporting timezone.
func (e *ReportEngine) timezone(ctx context.Context, accountID string) (*time.Location, error) {
	loc, err := e.timezones.Get(ctx, accountID, otter.LoaderFunc[string, *time.Location](e.loadTimezone))
	if err != nil {
		return nil, fmt.Errorf("resolving timezone of account %s: %w", accountID, err)
	}
	return loc, nil
}

func (e *ReportEngine) loadTimezone(ctx context.Context, accountID string) (*time.Location, error) {
	resp, err := e.client.Get(ctx, "accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return nil, err
	}

	data, _ := resp["data"].(map[string]any)
	name, _ := data["timezone"].(string)
	if name == "" {
		return nil, errors.New("account has no timezone")
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading location %q: %w", name, err)
	}
	return loc, nil
}

// entitySets resolves which entities to report on within w.
func (e *ReportEngine) entitySets(ctx context.Context, logger *zap.Logger, req ReportRequest, w window) ([]entitySet, error) {
	r := req.Report
	start, end := formatBounds(w.start, w.end, r.Granularity)
	logger.Debug("date window", zap.String("start_time", start), zap.String("end_time", end))

	switch r.Entity {
	case "ACCOUNT":
		sets := make([]entitySet, 0, len(placements))
		for _, p := range placements {
			sets = append(sets, entitySet{
				endTime:   end,
				entityIDs: []string{req.AccountID},
				placement: p,
				startTime: start,
			})
		}
		return sets, nil

	case "ORGANIC_TWEET":
		ids, err := e.organicTweetIDs(ctx, req.AccountID, w)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		// PUBLISHER_NETWORK is not a valid placement for organic tweets.
		return []entitySet{{
			endTime:   end,
			entityIDs: ids,
			placement: placementAllOnTwitter,
			startTime: start,
		}}, nil

	default:
		return e.activeEntitySets(ctx, req, w, start, end)
	}
}

// organicTweetIDs lists published organic tweets created within w. No active
// entities lookup exists for organic tweets.
func (e *ReportEngine) organicTweetIDs(ctx context.Context, accountID string, w window) ([]string, error) {
	tweets, _ := catalog.Lookup("tweets")

	params := url.Values{}
	for key, value := range tweets.Params {
		if !strings.Contains(value, "{") {
			params.Set(key, value)
		}
	}
	params.Set("count", strconv.Itoa(tweets.PageSize))
	params.Set("timeline_type", "ORGANIC")
	params.Set("trim_user", "true")
	params.Set("tweet_type", "PUBLISHED")
	params.Set("with_deleted", "false")

	path := strings.ReplaceAll(tweets.Path, catalog.PlaceholderAccountID, accountID)

	var ids []string
	for tweet, err := range e.client.Fetch(ctx, path, params) {
		if err != nil {
			return nil, fmt.Errorf("fetching organic tweets: %w", err)
		}

		raw, _ := tweet[tweets.ReplicationKey].(string)
		created, err := time.Parse(tweets.DatetimeLayout, raw)
		if err != nil {
			continue
		}
		if created.Before(w.start) {
			break
		}
		if !created.After(w.end) {
			if id := asString(tweet["id"]); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// activeEntitySets groups the entities active in w by placement, narrowing each
// set's range to the activity of its entities.
func (e *ReportEngine) activeEntitySets(ctx context.Context, req ReportRequest, w window, start, end string) ([]entitySet, error) {
	r := req.Report
	path := "stats/accounts/" + url.PathEscape(req.AccountID) + "/active_entities"
	params := url.Values{
		"end_time":   {end},
		"entity":     {r.Entity},
		"start_time": {start},
	}

	var active []map[string]any
	for item, err := range e.client.Fetch(ctx, path, params) {
		if err != nil {
			return nil, fmt.Errorf("fetching active entities: %w", err)
		}
		active = append(active, item)
	}

	loc := w.start.Location()
	var sets []entitySet
	for _, placement := range placements {
		var ids []string
		var minStart, maxEnd time.Time
		for _, item := range active {
			if !containsString(item["placements"], placement) {
				continue
			}

			activityStart, errStart := state.ParseTime(asString(item["activity_start_time"]))
			activityEnd, errEnd := state.ParseTime(asString(item["activity_end_time"]))
			if errStart != nil || errEnd != nil {
				e.logger.Warn("active entity has unparseable activity times", zap.Any("entity_id", item["entity_id"]))
				continue
			}
			activityStart, activityEnd = activityStart.In(loc), activityEnd.In(loc)

			if len(ids) == 0 || activityStart.Before(minStart) {
				minStart = activityStart
			}
			if len(ids) == 0 || activityEnd.After(maxEnd) {
				maxEnd = activityEnd
			}
			ids = append(ids, asString(item["entity_id"]))
		}
		if len(ids) == 0 {
			continue
		}

		setStart, setEnd := formatBounds(minStart, maxEnd, r.Granularity)
		sets = append(sets, entitySet{
			endTime:   setEnd,
			entityIDs: ids,
			placement: placement,
			startTime: setStart,
		})
	}
	return sets, nil
}

// submitJobs queues one job per entity set, sub-type and chunk of entity IDs.
func (e *ReportEngine) submitJobs(
	ctx context.Context,
	logger *zap.Logger,
	req ReportRequest,
	sets []entitySet,
	groups []string,
	segment string,
) ([]string, error) {
	r := req.Report
	path := "stats/jobs/accounts/" + url.PathEscape(req.AccountID)

	countryIDs, platformIDs := []string{""}, []string{""}
	switch {
	case slices.Contains(countrySegments, segment):
		countryIDs = req.CountryIDs
	case slices.Contains(platformSegments, segment):
		platformIDs = req.PlatformIDs
	}

	var jobIDs []string
	for _, set := range sets {
		for _, country := range countryIDs {
			for _, platform := range platformIDs {
				for _, ids := range chunk(set.entityIDs, entityIDsPerJob) {
					params := url.Values{
						"end_time":      {set.endTime},
						"entity":        {r.Entity},
						"entity_ids":    {strings.Join(ids, ",")},
						"granularity":   {r.Granularity},
						"metric_groups": {strings.Join(groups, ",")},
						"placement":     {set.placement},
						"start_time":    {set.startTime},
					}
					if segment != "" {
						params.Set("segmentation_type", segment)
					}
					if country != "" {
						params.Set("country", country)
					}
					if platform != "" {
						params.Set("platform", platform)
					}

					resp, err := e.client.Post(ctx, path, params)
					if err != nil {
						return nil, fmt.Errorf("submitting %s job: %w", r.Name, err)
					}
					data, _ := resp["data"].(map[string]any)
					jobID := asString(data["id_str"])
					if jobID == "" {
						return nil, fmt.Errorf("submitting %s job: response has no job id", r.Name)
					}
					jobIDs = append(jobIDs, jobID)
					logger.Debug("submitted job",
						zap.String("job_id", jobID),
						zap.String("placement", set.placement),
						zap.Int("entity_ids", len(ids)))
				}
			}
		}
	}
	return jobIDs, nil
}

// pollJobs checks job statuses until every job finished or the poll budget
// runs out. It returns the result URLs of successful jobs and the counts of
// failed and unfinished jobs.
func (e *ReportEngine) pollJobs(
	ctx context.Context,
	logger *zap.Logger,
	accountID string,
	jobIDs []string,
) ([]string, int, int, error) {
	path := "stats/jobs/accounts/" + url.PathEscape(accountID)
	outstanding := slices.Clone(jobIDs)

	var urls []string
	failed := 0
	for attempt := 1; len(outstanding) > 0 && attempt <= e.maxPolls; attempt++ {
		logger.Info("waiting for report jobs",
			zap.Int("attempt", attempt),
			zap.Int("outstanding", len(outstanding)),
			zap.Duration("interval", e.pollInterval))
		if err := e.sleep(ctx, e.pollInterval); err != nil {
			return nil, 0, 0, err
		}

		params := url.Values{
			"count":   {strconv.Itoa(lookupPageSize)},
			"job_ids": {strings.Join(outstanding, ",")},
		}
		for job, err := range e.client.Fetch(ctx, path, params) {
			if err != nil {
				return nil, 0, 0, fmt.Errorf("checking job statuses: %w", err)
			}

			id := asString(job["id_str"])
			if !slices.Contains(outstanding, id) {
				continue
			}

			status, _ := job["status"].(string)
			switch status {
			case jobStatusQueued, jobStatusProcessing, jobStatusUploading:
			case jobStatusSuccess:
				u, _ := job["url"].(string)
				if u == "" {
					logger.Warn("successful job has no result url", zap.String("job_id", id))
					failed++
				} else {
					urls = append(urls, u)
				}
				outstanding = slices.DeleteFunc(outstanding, func(s string) bool { return s == id })
			default:
				logger.Warn("report job did not succeed", zap.String("job_id", id), zap.String("status", status))
				failed++
				outstanding = slices.DeleteFunc(outstanding, func(s string) bool { return s == id })
			}
		}
	}

	if len(outstanding) > 0 {
		logger.Error("report jobs still running after final poll, dropping",
			zap.Strings("job_ids", outstanding),
			zap.Int("polls", e.maxPolls))
	}

	return urls, failed, len(outstanding), nil
}

// metricGroups returns the metric groups valid for an entity and segment, and
// the effective segment, empty when the report is not segmented.
func metricGroups(entity, segment string) ([]string, string) {
	if segment == config.NoSegment {
		segment = ""
	}

	switch {
	case segment == "CONVERSION_TAGS" && slices.Contains([]string{"ACCOUNT", "CAMPAIGN", "LINE_ITEM", "PROMOTED_TWEET"}, entity):
		return []string{"WEB_CONVERSION"}, segment
	case entity == "ACCOUNT":
		return []string{"ENGAGEMENT"}, segment
	case entity == "FUNDING_INSTRUMENT":
		return []string{"ENGAGEMENT", "BILLING"}, segment
	case entity == "MEDIA_CREATIVE":
		return slices.Clone(allMetricGroups), ""
	case entity == "ORGANIC_TWEET":
		return []string{"ENGAGEMENT", "VIDEO"}, ""
	default:
		return slices.Clone(allMetricGroups), segment
	}
}

func containsString(v any, want string) bool {
	items, _ := v.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok && s == want {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

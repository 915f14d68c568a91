package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/catalog"
	"github.com/peteski22/adsbridge/internal/config"
	"github.com/peteski22/adsbridge/internal/sink"
	"github.com/peteski22/adsbridge/internal/state"
)

// Config holds the required configuration for creating a Service.
type Config struct {
	// Accounts are the ad accounts to sync, in order.
	Accounts []string

	// AttributionWindow is the number of trailing days reports always re-fetch.
	AttributionWindow int

	// Catalog decides which streams are emitted.
	Catalog *catalog.Catalog

	// Client is the Ads API client.
	Client AdsClient

	// CountryCodes are the configured ISO country codes.
	CountryCodes []string

	// DryRun indicates whether to skip writing records and persisting state.
	DryRun bool

	// Logger is the structured logger for the service.
	Logger *zap.Logger

	// MaxPolls bounds report job status checks. Defaults to 20.
	MaxPolls int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// PageSize resolves the page size of a resource.
	PageSize func(resource string) (int, error)

	// PollInterval is the wait before each report job status check. Defaults to 15s.
	PollInterval time.Duration

	// Reports are the configured report definitions.
	Reports []config.Report

	// Sink receives the output stream.
	Sink Sink

	// Sleep waits between report polls. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// StartDate is the watermark used by resources with no bookmark.
	StartDate string

	// StateStore manages sync state persistence.
	StateStore StateStore

	// WithDeleted is "true" or "false".
	WithDeleted string
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("at least one account is required"))
	}
	if c.Catalog == nil {
		errs = append(errs, errors.New("catalog is required"))
	}
	if c.Client == nil {
		errs = append(errs, errors.New("ads client is required"))
	}
	if c.Sink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	if c.StateStore == nil {
		errs = append(errs, errors.New("state store is required"))
	}
	if c.StartDate == "" {
		errs = append(errs, errors.New("start date is required"))
	} else if _, err := state.ParseTime(c.StartDate); err != nil {
		errs = append(errs, fmt.Errorf("start date: %w", err))
	}
	return errors.Join(errs...)
}

// Service orchestrates a sync run across accounts, resources and reports.
type Service struct {
	accounts     []string
	catalog      *catalog.Catalog
	client       AdsClient
	countryCodes []string
	dryRun       bool
	endpoints    *EndpointEngine
	logger       *zap.Logger
	reportDefs   []config.Report
	reports      *ReportEngine
	sink         Sink
	startDate    string
	stateStore   StateStore
}

// planItem is one unit of work run for every account.
type planItem struct {
	descriptor catalog.Descriptor
	emit       bool
	report     *config.Report
}

func (p planItem) name() string {
	if p.report != nil {
		return p.report.Name
	}
	return p.descriptor.Name
}

// New creates a new sync orchestration service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	out := cfg.Sink
	store := cfg.StateStore
	if cfg.DryRun {
		out = sink.NewDryRun(logger)
		store = newDryRunStateStore(cfg.StateStore, logger)
	}

	endpoints, err := NewEndpointEngine(EndpointConfig{
		Catalog:      cfg.Catalog,
		Client:       cfg.Client,
		CountryCodes: cfg.CountryCodes,
		Logger:       logger,
		Now:          cfg.Now,
		PageSize:     cfg.PageSize,
		Sink:         out,
		WithDeleted:  cfg.WithDeleted,
	})
	if err != nil {
		return nil, err
	}

	reports, err := NewReportEngine(ReportConfig{
		AttributionWindow: cfg.AttributionWindow,
		Catalog:           cfg.Catalog,
		Client:            cfg.Client,
		Logger:            logger,
		MaxPolls:          cfg.MaxPolls,
		Now:               cfg.Now,
		PollInterval:      cfg.PollInterval,
		Sink:              out,
		Sleep:             cfg.Sleep,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		accounts:     cfg.Accounts,
		catalog:      cfg.Catalog,
		client:       cfg.Client,
		countryCodes: cfg.CountryCodes,
		dryRun:       cfg.DryRun,
		endpoints:    endpoints,
		logger:       logger,
		reportDefs:   cfg.Reports,
		reports:      reports,
		sink:         out,
		startDate:    cfg.StartDate,
		stateStore:   store,
	}, nil
}

// Run executes a full sync cycle. Every watermark change is emitted as a state
// message and saved to the state store before the run continues, so an
// interrupted run resumes from the resource it was working on.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	result := &Result{DryRun: s.dryRun, Records: map[string]int{}}

	st, err := s.stateStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	bookmarks := state.NewBookmarks(st, state.PersisterFunc(s.persist))

	selected := s.catalog.Selected()
	if selected.Cardinality() == 0 {
		s.logger.Info("no streams selected")
		return result, nil
	}

	plan, children := s.plan(selected)
	plan = resumeOrder(plan, bookmarks.CurrentlySyncing())

	names := make([]string, 0, len(plan))
	for _, item := range plan {
		names = append(names, item.name())
	}
	s.logger.Info("starting sync",
		zap.Strings("streams", names),
		zap.Strings("children", children.ToSlice()),
		zap.String("currently_syncing", bookmarks.CurrentlySyncing()),
		zap.Int("accounts", len(s.accounts)),
		zap.Bool("dry_run", s.dryRun))

	for _, account := range s.accounts {
		if err := s.syncAccount(ctx, account, plan, children, bookmarks, result); err != nil {
			return result, fmt.Errorf("syncing account %s: %w", account, err)
		}
		result.Accounts++
	}

	s.logSyncComplete(result)
	return result, nil
}

// persist emits the state document and saves it.
func (s *Service) persist(ctx context.Context, st *state.State) error {
	if err := s.sink.WriteState(ctx, st); err != nil {
		return fmt.Errorf("writing state message: %w", err)
	}
	if err := s.stateStore.Save(ctx, st); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// plan lists the resources and reports to run in catalogue order. A parent
// whose child is selected runs even when it is not selected itself, only to
// collect IDs.
func (s *Service) plan(selected mapset.Set[string]) ([]planItem, mapset.Set[string]) {
	children := mapset.NewThreadUnsafeSet[string]()

	var plan []planItem
	for _, d := range catalog.Resources() {
		childSelected := d.Child != nil && selected.Contains(d.Child.Name)
		if childSelected {
			children.Add(d.Child.Name)
		}

		switch {
		case selected.Contains(d.Name):
			plan = append(plan, planItem{descriptor: d, emit: true})
		case childSelected:
			plan = append(plan, planItem{descriptor: d, emit: false})
		}
	}

	for i := range s.reportDefs {
		if selected.Contains(s.reportDefs[i].Name) {
			plan = append(plan, planItem{emit: true, report: &s.reportDefs[i]})
		}
	}

	return plan, children
}

// resumeOrder moves the interrupted item and those after it to the front.
// An interrupted child resumes with its parent.
func resumeOrder(plan []planItem, current string) []planItem {
	if current == "" {
		return plan
	}
	if d, ok := catalog.Lookup(current); ok && d.Parent != "" {
		current = d.Parent
	}

	for i, item := range plan {
		if item.name() == current {
			return append(append([]planItem{}, plan[i:]...), plan[:i]...)
		}
	}
	return plan
}

func (s *Service) syncAccount(
	ctx context.Context,
	accountID string,
	plan []planItem,
	children mapset.Set[string],
	bookmarks *state.Bookmarks,
	result *Result,
) error {
	logger := s.logger.With(zap.String("account_id", accountID))
	logger.Info("starting account")

	var lookups *targetingLookups
	for _, item := range plan {
		name := item.name()
		if err := bookmarks.SetCurrentlySyncing(ctx, name); err != nil {
			return fmt.Errorf("marking %s in progress: %w", name, err)
		}

		if item.report != nil {
			if lookups == nil {
				l, err := lookupTargeting(ctx, s.client, logger, s.countryCodes)
				if err != nil {
					return err
				}
				lookups = &l
			}
			if err := s.syncReport(ctx, accountID, *item.report, *lookups, bookmarks, result); err != nil {
				return err
			}
		} else if err := s.syncResource(ctx, logger, accountID, item, children, bookmarks, result); err != nil {
			return err
		}

		if err := bookmarks.SetCurrentlySyncing(ctx, ""); err != nil {
			return fmt.Errorf("clearing currently syncing: %w", err)
		}
	}

	logger.Info("finished account")
	return nil
}

func (s *Service) syncResource(
	ctx context.Context,
	logger *zap.Logger,
	accountID string,
	item planItem,
	children mapset.Set[string],
	bookmarks *state.Bookmarks,
	result *Result,
) error {
	d := item.descriptor
	if item.emit {
		if err := s.endpoints.writeSchema(ctx, d); err != nil {
			return err
		}
		if stream, ok := s.catalog.Stream(d.Name); ok {
			logger.Debug("selected stream", zap.String("stream", d.Name), zap.Strings("excluded_fields", stream.ExcludedFields()))
		}
	}

	res, err := s.endpoints.Sync(ctx, SyncRequest{
		AccountID:        accountID,
		Bookmarks:        bookmarks,
		Descriptor:       d,
		Emit:             item.emit,
		SelectedChildren: children,
		StartDate:        s.startDate,
	})
	if err != nil {
		return err
	}

	if item.emit {
		result.Records[d.Name] += res.Records
	}
	if d.Child != nil && children.Contains(d.Child.Name) {
		result.Records[d.Child.Name] += res.ChildRecords
	}
	result.OutOfOrder += res.OutOfOrder

	logger.Info("finished stream",
		zap.String("stream", d.Name),
		zap.Bool("emitted", item.emit),
		zap.Int("records", res.Records),
		zap.Int("child_records", res.ChildRecords))
	return nil
}

func (s *Service) syncReport(
	ctx context.Context,
	accountID string,
	r config.Report,
	lookups targetingLookups,
	bookmarks *state.Bookmarks,
	result *Result,
) error {
	var schema map[string]any
	var keys []string
	if stream, ok := s.catalog.Stream(r.Name); ok {
		schema, keys = stream.Schema, stream.KeyProperties
	}
	if keys == nil {
		keys = []string{catalog.ReportKeyField}
	}
	if err := s.sink.WriteSchema(ctx, r.Name, schema, keys); err != nil {
		return fmt.Errorf("writing %s schema: %w", r.Name, err)
	}

	res, err := s.reports.Sync(ctx, ReportRequest{
		AccountID:   accountID,
		Bookmarks:   bookmarks,
		CountryIDs:  lookups.countryIDs,
		PlatformIDs: lookups.platformIDs,
		Report:      r,
		StartDate:   s.startDate,
	})
	if err != nil {
		return err
	}

	result.Records[r.Name] += res.Records
	result.JobsSubmitted += res.JobsSubmitted
	result.JobsFailed += res.JobsFailed
	result.JobsTimedOut += res.JobsTimedOut
	return nil
}

// logSyncComplete logs the final sync summary.
func (s *Service) logSyncComplete(result *Result) {
	s.logger.Info("sync completed",
		zap.Int("accounts", result.Accounts),
		zap.Int("records", result.TotalRecords()),
		zap.Any("records_by_stream", result.Records),
		zap.Int("jobs_submitted", result.JobsSubmitted),
		zap.Int("jobs_failed", result.JobsFailed),
		zap.Int("jobs_timed_out", result.JobsTimedOut),
		zap.Int("out_of_order", result.OutOfOrder),
		zap.Bool("dry_run", s.dryRun))
}

// Package app wires configuration, AWS services and the Ads API client into a
// sync run shared by the command-line and Lambda entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/catalog"
	"github.com/peteski22/adsbridge/internal/config"
	"github.com/peteski22/adsbridge/internal/sink"
	"github.com/peteski22/adsbridge/internal/storage"
	adsync "github.com/peteski22/adsbridge/internal/sync"
	"github.com/peteski22/adsbridge/internal/twitterads"
)

// AWSConfigFunc loads the AWS SDK configuration.
type AWSConfigFunc func(ctx context.Context) (aws.Config, error)

// Options control how a run is assembled.
type Options struct {
	// AWSConfig loads the AWS SDK configuration on first use. Defaults to the
	// SDK's default credential chain.
	AWSConfig AWSConfigFunc

	// CatalogPath overrides the configured catalog file.
	CatalogPath string

	// DryRun counts and logs records without writing them or persisting state.
	DryRun bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// StatePath overrides the configured state file of the file backend.
	StatePath string

	// Stdout receives the message stream when no S3 bucket is configured.
	Stdout io.Writer

	// Uploader replaces the S3 uploader built from the AWS configuration.
	Uploader sink.UploaderAPI
}

// ErrNoOutputBucket is returned where stdout cannot carry the message stream
// and no S3 bucket is configured.
var ErrNoOutputBucket = errors.New(config.KeyOutputS3Bucket + " is required")

// RequireOutputBucket checks that settings send the message stream to S3, for
// environments whose stdout is not collected.
func RequireOutputBucket(settings *config.Settings) error {
	if settings == nil || settings.OutputS3Bucket == "" {
		return ErrNoOutputBucket
	}
	return nil
}

// App holds the dependencies of a run.
type App struct {
	awsConfig AWSConfigFunc
	awsLoaded *aws.Config
	logger    *zap.Logger
	opts      Options
	settings  *config.Settings
}

// New creates an App for validated settings.
func New(settings *config.Settings, logger *zap.Logger, opts Options) (*App, error) {
	if settings == nil {
		return nil, errors.New("settings are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AWSConfig == nil {
		opts.AWSConfig = func(ctx context.Context) (aws.Config, error) {
			return awsconfig.LoadDefaultConfig(ctx)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	return &App{
		awsConfig: opts.AWSConfig,
		logger:    logger,
		opts:      opts,
		settings:  settings,
	}, nil
}

// loadAWS loads the AWS configuration once.
func (a *App) loadAWS(ctx context.Context) (aws.Config, error) {
	if a.awsLoaded != nil {
		return *a.awsLoaded, nil
	}
	cfg, err := a.awsConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	a.awsLoaded = &cfg
	return cfg, nil
}

// Credentials returns the OAuth credentials, read from Secrets Manager when a
// secret ARN is configured.
func (a *App) Credentials(ctx context.Context) (twitterads.Credentials, error) {
	s := a.settings
	if s.CredentialsSecretARN == "" {
		return twitterads.Credentials{
			AccessToken:       s.AccessToken,
			AccessTokenSecret: s.AccessTokenSecret,
			ConsumerKey:       s.ConsumerKey,
			ConsumerSecret:    s.ConsumerSecret,
		}, nil
	}

	cfg, err := a.loadAWS(ctx)
	if err != nil {
		return twitterads.Credentials{}, err
	}
	store, err := storage.NewCredentialStore(secretsmanager.NewFromConfig(cfg), s.CredentialsSecretARN)
	if err != nil {
		return twitterads.Credentials{}, err
	}
	return store.Credentials(ctx)
}

// Client creates the Ads API client.
func (a *App) Client(ctx context.Context) (*twitterads.Client, error) {
	creds, err := a.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	opts := []twitterads.Option{
		twitterads.WithLogger(a.logger),
		twitterads.WithRateLimit(a.settings.RequestsPerSecond),
	}
	if timeout := a.settings.Timeout(); timeout > 0 {
		opts = append(opts, twitterads.WithTimeout(timeout))
	}
	if a.settings.BaseURL != "" {
		opts = append(opts, twitterads.WithBaseURL(a.settings.BaseURL))
	}
	if a.settings.UserAgent != "" {
		opts = append(opts, twitterads.WithUserAgent(a.settings.UserAgent))
	}

	client, err := twitterads.NewClient(creds, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating ads client: %w", err)
	}
	return client, nil
}

// Catalog loads the selection catalog from the flag, the configured path or
// the default location, in that order.
func (a *App) Catalog() (*catalog.Catalog, error) {
	path := a.opts.CatalogPath
	if path == "" {
		path = a.settings.CatalogPath
	}
	if path == "" {
		def, err := config.CatalogFilePath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(def); err != nil {
			return nil, errors.New("no catalog configured; run 'adsbridge discover' and select streams")
		}
		path = def
	}
	return catalog.Load(path)
}

// StateStore creates the configured state store.
func (a *App) StateStore(ctx context.Context) (adsync.StateStore, error) {
	s := a.settings
	switch s.StateBackend {
	case config.BackendNone:
		return storage.NewNoopStateStore(nil), nil

	case config.BackendSSM:
		cfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewSSMStateStore(ssm.NewFromConfig(cfg), s.SSMParameterName)

	case config.BackendDynamoDB:
		cfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewDynamoDBStateStore(dynamodb.NewFromConfig(cfg), s.DynamoDBTableName)

	case config.BackendFile, "":
		path := a.opts.StatePath
		if path == "" {
			path = s.StatePath
		}
		if path == "" {
			def, err := config.StateFilePath()
			if err != nil {
				return nil, err
			}
			path = def
		}
		return storage.NewFileStateStore(path)

	default:
		return nil, fmt.Errorf("unknown state backend %q", s.StateBackend)
	}
}

// output opens the message stream destination. The S3 output is nil when the
// stream goes to stdout.
func (a *App) output(ctx context.Context) (io.Writer, *sink.S3Output, error) {
	if a.settings.OutputS3Bucket == "" || a.opts.DryRun {
		return a.opts.Stdout, nil, nil
	}

	uploader := a.opts.Uploader
	if uploader == nil {
		cfg, err := a.loadAWS(ctx)
		if err != nil {
			return nil, nil, err
		}
		uploader = manager.NewUploader(s3.NewFromConfig(cfg))
	}

	out, err := sink.NewS3Output(
		uploader,
		a.settings.OutputS3Bucket,
		a.settings.OutputS3Prefix,
		a.opts.Now(),
	)
	if err != nil {
		return nil, nil, err
	}
	return out, out, nil
}

// Run performs one sync run.
func (a *App) Run(ctx context.Context) (*adsync.Result, error) {
	client, err := a.Client(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := a.Catalog()
	if err != nil {
		return nil, err
	}
	return a.RunWith(ctx, client, cat)
}

// RunWith performs one sync run with an existing client and catalog.
func (a *App) RunWith(ctx context.Context, client adsync.AdsClient, cat *catalog.Catalog) (*adsync.Result, error) {
	store, err := a.StateStore(ctx)
	if err != nil {
		return nil, err
	}

	w, upload, err := a.output(ctx)
	if err != nil {
		return nil, err
	}

	// State saved during the run only reaches the store once the records it
	// covers are uploaded.
	var deferred *deferredStateStore
	if upload != nil {
		deferred = newDeferredStateStore(store)
		store = deferred
	}

	s := a.settings
	svc, err := adsync.New(adsync.Config{
		Accounts:          s.AccountIDList(),
		AttributionWindow: s.AttributionWindow,
		Catalog:           cat,
		Client:            client,
		CountryCodes:      s.CountryCodeList(),
		DryRun:            a.opts.DryRun,
		Logger:            a.logger,
		Now:               a.opts.Now,
		PageSize:          s.PageSizeFor,
		PollInterval:      s.PollEvery(),
		Reports:           s.Reports,
		Sink:              sink.NewWriter(w),
		StartDate:         s.StartDate,
		StateStore:        store,
		WithDeleted:       s.WithDeleted,
	})
	if err != nil {
		if upload != nil {
			_ = upload.Discard()
		}
		return nil, err
	}

	result, runErr := svc.Run(ctx)
	if upload == nil {
		return result, runErr
	}

	if err := upload.Close(ctx); err != nil {
		a.logger.Error("message stream not delivered, state left unchanged", zap.Error(err))
		return result, errors.Join(runErr, fmt.Errorf("closing output: %w", err))
	}
	a.logger.Info("uploaded message stream",
		zap.String("bucket", s.OutputS3Bucket),
		zap.String("key", upload.Key()))

	if err := deferred.commit(ctx); err != nil {
		return result, errors.Join(runErr, err)
	}
	return result, runErr
}

// Check verifies the credentials and that every configured account can be read.
func (a *App) Check(ctx context.Context) error {
	client, err := a.Client(ctx)
	if err != nil {
		return err
	}
	if err := client.CheckAccess(ctx); err != nil {
		return err
	}
	return a.CheckAccounts(ctx, client)
}

// CheckAccounts reads each configured account.
func (a *App) CheckAccounts(ctx context.Context, client adsync.AdsClient) error {
	for _, id := range a.settings.AccountIDList() {
		resp, err := client.Get(ctx, "accounts/"+id, nil)
		if err != nil {
			return fmt.Errorf("reading account %s: %w", id, err)
		}
		data, _ := resp["data"].(map[string]any)
		a.logger.Info("account accessible",
			zap.String("account_id", id),
			zap.Any("name", data["name"]),
			zap.Any("timezone", data["timezone"]))
	}
	return nil
}

// ReportNames returns the names of the configured reports.
func (a *App) ReportNames() []string {
	names := make([]string, 0, len(a.settings.Reports))
	for _, r := range a.settings.Reports {
		names = append(names, r.Name)
	}
	return names
}

// Package config provides configuration loading from a config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/peteski22/adsbridge/internal/state"
)

// EnvPrefix prefixes every environment variable, e.g. ADSBRIDGE_START_DATE.
const EnvPrefix = "ADSBRIDGE"

// Configuration keys.
const (
	KeyAccessToken          = "access_token"
	KeyAccessTokenSecret    = "access_token_secret"
	KeyAccountIDs           = "account_ids"
	KeyAttributionWindow    = "attribution_window"
	KeyBaseURL              = "base_url"
	KeyCatalogPath          = "catalog_path"
	KeyConsumerKey          = "consumer_key"
	KeyConsumerSecret       = "consumer_secret"
	KeyCountryCodes         = "country_codes"
	KeyCredentialsSecretARN = "credentials_secret_arn"
	KeyDynamoDBTableName    = "dynamodb_table_name"
	KeyLogFormat            = "log_format"
	KeyLogLevel             = "log_level"
	KeyOutputS3Bucket       = "output_s3_bucket"
	KeyOutputS3Prefix       = "output_s3_prefix"
	KeyPageSize             = "page_size"
	KeyPageSizes            = "page_sizes"
	KeyPollInterval         = "poll_interval"
	KeyReports              = "reports"
	KeyRequestTimeout       = "request_timeout"
	KeyRequestsPerSecond    = "requests_per_second"
	KeySSMParameterName     = "ssm_parameter_name"
	KeyStartDate            = "start_date"
	KeyStateBackend         = "state_backend"
	KeyStatePath            = "state_path"
	KeyUserAgent            = "user_agent"
	KeyWithDeleted          = "with_deleted"
)

// State backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendFile     = "file"
	BackendNone     = "none"
	BackendSSM      = "ssm"
)

// defaults holds the value of every key that has one. Keys without a real
// default are registered empty so environment variables bind to them.
var defaults = map[string]any{
	KeyAccessToken:          "",
	KeyAccessTokenSecret:    "",
	KeyAccountIDs:           "",
	KeyAttributionWindow:    14,
	KeyBaseURL:              "",
	KeyCatalogPath:          "",
	KeyConsumerKey:          "",
	KeyConsumerSecret:       "",
	KeyCountryCodes:         "US",
	KeyCredentialsSecretARN: "",
	KeyDynamoDBTableName:    "",
	KeyLogFormat:            "json",
	KeyLogLevel:             "info",
	KeyOutputS3Bucket:       "",
	KeyOutputS3Prefix:       "",
	KeyPollInterval:         15,
	KeyRequestTimeout:       300,
	KeyRequestsPerSecond:    0,
	KeySSMParameterName:     "",
	KeyStartDate:            "",
	KeyStateBackend:         BackendFile,
	KeyStatePath:            "",
	KeyUserAgent:            "",
	KeyWithDeleted:          "true",
}

// Settings holds all configuration for a sync run.
type Settings struct {
	// AccessToken is the OAuth user access token.
	AccessToken string `mapstructure:"access_token"`

	// AccessTokenSecret is the OAuth user access token secret.
	AccessTokenSecret string `mapstructure:"access_token_secret"`

	// AccountIDs is the comma-separated list of ad accounts to sync.
	AccountIDs string `mapstructure:"account_ids"`

	// AttributionWindow is the number of trailing days re-fetched by reports.
	AttributionWindow int `mapstructure:"attribution_window"`

	// BaseURL overrides the Ads API root.
	BaseURL string `mapstructure:"base_url"`

	// CatalogPath is the selection catalog file.
	CatalogPath string `mapstructure:"catalog_path"`

	// ConsumerKey is the OAuth application key.
	ConsumerKey string `mapstructure:"consumer_key"`

	// ConsumerSecret is the OAuth application secret.
	ConsumerSecret string `mapstructure:"consumer_secret"`

	// CountryCodes is the comma-separated list of ISO country codes.
	CountryCodes string `mapstructure:"country_codes"`

	// CredentialsSecretARN names a Secrets Manager secret holding the OAuth credentials.
	CredentialsSecretARN string `mapstructure:"credentials_secret_arn"`

	// DynamoDBTableName is the state table for the dynamodb backend.
	DynamoDBTableName string `mapstructure:"dynamodb_table_name"`

	// LogFormat is json or console.
	LogFormat string `mapstructure:"log_format"`

	// LogLevel is the minimum log level.
	LogLevel string `mapstructure:"log_level"`

	// OutputS3Bucket uploads the message stream to this bucket when set.
	OutputS3Bucket string `mapstructure:"output_s3_bucket"`

	// OutputS3Prefix is the key prefix for uploaded message streams.
	OutputS3Prefix string `mapstructure:"output_s3_prefix"`

	// PageSize is the raw page size setting; see ParsePageSize.
	PageSize any `mapstructure:"page_size"`

	// PageSizes overrides the page size per resource.
	PageSizes map[string]any `mapstructure:"page_sizes"`

	// PollInterval is the number of seconds between report job status checks.
	PollInterval int `mapstructure:"poll_interval"`

	// Reports are the configured report definitions.
	Reports []Report `mapstructure:"reports"`

	// RequestTimeout is the per-request HTTP timeout in seconds.
	RequestTimeout int `mapstructure:"request_timeout"`

	// RequestsPerSecond paces API calls; zero disables pacing.
	RequestsPerSecond int `mapstructure:"requests_per_second"`

	// SSMParameterName is the state parameter for the ssm backend.
	SSMParameterName string `mapstructure:"ssm_parameter_name"`

	// StartDate is the initial watermark for resources with no bookmark.
	StartDate string `mapstructure:"start_date"`

	// StateBackend selects where state is persisted.
	StateBackend string `mapstructure:"state_backend"`

	// StatePath is the state file for the file backend.
	StatePath string `mapstructure:"state_path"`

	// UserAgent is sent with every API request when set.
	UserAgent string `mapstructure:"user_agent"`

	// WithDeleted is "true" or "false" and controls whether soft-deleted entities are returned.
	WithDeleted string `mapstructure:"with_deleted"`
}

// AccountIDList returns the configured account IDs.
func (s *Settings) AccountIDList() []string {
	return splitList(s.AccountIDs)
}

// CountryCodeList returns the configured country codes.
func (s *Settings) CountryCodeList() []string {
	return splitList(s.CountryCodes)
}

// PageSizeFor resolves the page size for a resource: its override if set,
// otherwise the global setting.
func (s *Settings) PageSizeFor(resource string) (int, error) {
	if v, ok := s.PageSizes[resource]; ok {
		size, err := ParsePageSize(v)
		if err != nil {
			return 0, fmt.Errorf("%s.%s: %w", KeyPageSizes, resource, err)
		}
		return size, nil
	}
	return ParsePageSize(s.PageSize)
}

// PollEvery returns the report poll interval.
func (s *Settings) PollEvery() time.Duration {
	return time.Duration(s.PollInterval) * time.Second
}

// Timeout returns the per-request HTTP timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// StartTime returns the parsed start date.
func (s *Settings) StartTime() (time.Time, error) {
	return state.ParseTime(s.StartDate)
}

// Validate checks the settings, reporting every problem at once.
func (s *Settings) Validate() error {
	var errs []error

	if s.StartDate == "" {
		errs = append(errs, requiredError(KeyStartDate))
	} else if _, err := s.StartTime(); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyStartDate, err))
	}
	if len(s.AccountIDList()) == 0 {
		errs = append(errs, requiredError(KeyAccountIDs))
	}
	if s.CredentialsSecretARN == "" {
		for key, value := range map[string]string{
			KeyAccessToken:       s.AccessToken,
			KeyAccessTokenSecret: s.AccessTokenSecret,
			KeyConsumerKey:       s.ConsumerKey,
			KeyConsumerSecret:    s.ConsumerSecret,
		} {
			if value == "" {
				errs = append(errs, requiredError(key))
			}
		}
	}
	if s.AttributionWindow < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyAttributionWindow, s.AttributionWindow))
	}
	if s.WithDeleted != "true" && s.WithDeleted != "false" {
		errs = append(errs, fmt.Errorf("%s must be \"true\" or \"false\", got %q", KeyWithDeleted, s.WithDeleted))
	}
	if len(s.CountryCodeList()) == 0 {
		errs = append(errs, requiredError(KeyCountryCodes))
	}
	if s.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyRequestTimeout, s.RequestTimeout))
	}
	if s.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyPollInterval, s.PollInterval))
	}
	if s.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyRequestsPerSecond, s.RequestsPerSecond))
	}
	if _, err := ParsePageSize(s.PageSize); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyPageSize, err))
	}
	for resource := range s.PageSizes {
		if _, err := s.PageSizeFor(resource); err != nil {
			errs = append(errs, err)
		}
	}

	switch s.StateBackend {
	case BackendFile, BackendNone:
	case BackendSSM:
		if s.SSMParameterName == "" {
			errs = append(errs, requiredError(KeySSMParameterName))
		}
	case BackendDynamoDB:
		if s.DynamoDBTableName == "" {
			errs = append(errs, requiredError(KeyDynamoDBTableName))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", KeyStateBackend,
			strings.Join([]string{BackendFile, BackendSSM, BackendDynamoDB, BackendNone}, ", "), s.StateBackend))
	}

	names := map[string]bool{}
	for i := range s.Reports {
		if err := s.Reports[i].validate(); err != nil {
			errs = append(errs, fmt.Errorf("reports[%d]: %w", i, err))
		}
		if names[s.Reports[i].Name] {
			errs = append(errs, fmt.Errorf("reports[%d]: duplicate report name %q", i, s.Reports[i].Name))
		}
		names[s.Reports[i].Name] = true
	}

	return errors.Join(errs...)
}

// NewViper returns a viper instance with defaults and environment binding set up.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// No default, but must still bind to the environment.
	_ = v.BindEnv(KeyPageSize)
	_ = v.BindEnv(KeyPageSizes)
	_ = v.BindEnv(KeyReports)

	return v
}

// Load reads settings from v, first merging the config file at path when set.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		boolToStringHook,
		jsonStringHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	for i := range s.Reports {
		s.Reports[i].normalize()
	}
	s.StateBackend = strings.ToLower(strings.TrimSpace(s.StateBackend))
	s.WithDeleted = strings.ToLower(strings.TrimSpace(s.WithDeleted))

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// boolToStringHook keeps JSON booleans such as with_deleted as "true"/"false"
// rather than the weakly typed "1"/"0".
func boolToStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.Bool && to.Kind() == reflect.String {
		return strconv.FormatBool(data.(bool)), nil
	}
	return data, nil
}

// jsonStringHook decodes JSON held in a string, as environment variables
// carry reports and page_sizes.
func jsonStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to.Kind() != reflect.Slice && to.Kind() != reflect.Map {
		return data, nil
	}

	raw := strings.TrimSpace(data.(string))
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(raw, "[") && !strings.HasPrefix(raw, "{") {
		return data, nil
	}

	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding JSON value: %w", err)
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func requiredError(key string) error {
	return fmt.Errorf("%s is required", key)
}

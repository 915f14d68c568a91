package twitterads

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the versioned Ads API root.
const DefaultBaseURL = "https://ads-api.twitter.com/12"

// Option configures optional Client settings.
type Option func(*options) error

// options holds optional configuration for creating a Client.
type options struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// downloadRetries is the number of retries for report downloads.
	downloadRetries uint64

	// httpClient replaces the OAuth-signing HTTP client.
	httpClient *http.Client

	// logger receives retry and rate-limit warnings.
	logger *zap.Logger

	// maxRetries is the number of retries for API calls.
	maxRetries uint64

	// requestsPerSecond paces outgoing requests; zero disables pacing.
	requestsPerSecond int

	// retryInterval is the initial backoff interval.
	retryInterval time.Duration

	// sleep waits for the given duration or until the context ends.
	sleep sleepFunc

	// timeout is the HTTP client timeout.
	timeout time.Duration

	// userAgent is sent with every request when set.
	userAgent string
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(o *options) error {
		baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		o.baseURL = baseURL
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client used for both API calls and downloads.
// The client is used as-is, so requests are not OAuth signed. Overrides WithTimeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) error {
		if httpClient == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		o.httpClient = httpClient
		return nil
	}
}

// WithLogger sets the logger for retry and rate-limit events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithMaxRetries sets how many times a failed API call is retried.
func WithMaxRetries(retries uint64) Option {
	return func(o *options) error {
		o.maxRetries = retries
		return nil
	}
}

// WithRateLimit paces requests to at most rps per second.
func WithRateLimit(rps int) Option {
	return func(o *options) error {
		if rps < 0 {
			return fmt.Errorf("requests per second cannot be negative, got %d", rps)
		}
		o.requestsPerSecond = rps
		return nil
	}
}

// WithRetryInterval sets the initial exponential backoff interval.
func WithRetryInterval(interval time.Duration) Option {
	return func(o *options) error {
		if interval <= 0 {
			return fmt.Errorf("retry interval must be positive, got %v", interval)
		}
		o.retryInterval = interval
		return nil
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		o.timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(o *options) error {
		o.userAgent = strings.TrimSpace(userAgent)
		return nil
	}
}

// withSleep replaces the rate-limit wait, for tests.
func withSleep(fn sleepFunc) Option {
	return func(o *options) error {
		o.sleep = fn
		return nil
	}
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *options {
	return &options{
		baseURL:         DefaultBaseURL,
		downloadRetries: 6,
		logger:          zap.NewNop(),
		maxRetries:      4,
		retryInterval:   time.Second,
		sleep:           sleepContext,
		timeout:         300 * time.Second,
	}
}

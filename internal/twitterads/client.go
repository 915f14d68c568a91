// Package twitterads is a client for the Twitter Ads API.
package twitterads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dghubble/oauth1"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// rateLimitThreshold is the percentage of remaining calls below which the
// client waits for the rate-limit window to reset.
const rateLimitThreshold = 5

// Record is a single JSON object returned by the API.
type Record = map[string]any

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// Credentials are the OAuth 1.0a user-context credentials for the API.
type Credentials struct {
	// AccessToken is the user access token.
	AccessToken string

	// AccessTokenSecret is the user access token secret.
	AccessTokenSecret string

	// ConsumerKey is the application consumer key.
	ConsumerKey string

	// ConsumerSecret is the application consumer secret.
	ConsumerSecret string
}

// validate checks that every credential is present.
func (c Credentials) validate() error {
	var errs []error
	if c.ConsumerKey == "" {
		errs = append(errs, errors.New("consumer key is required"))
	}
	if c.ConsumerSecret == "" {
		errs = append(errs, errors.New("consumer secret is required"))
	}
	if c.AccessToken == "" {
		errs = append(errs, errors.New("access token is required"))
	}
	if c.AccessTokenSecret == "" {
		errs = append(errs, errors.New("access token secret is required"))
	}
	return errors.Join(errs...)
}

// Client is a Twitter Ads API client.
type Client struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// downloadClient fetches report payloads, which are not OAuth signed.
	downloadClient *http.Client

	// downloadRetries is the number of retries for report downloads.
	downloadRetries uint64

	// httpClient signs and executes API requests.
	httpClient *http.Client

	// limiter paces outgoing requests.
	limiter ratelimit.Limiter

	// logger receives retry and rate-limit warnings.
	logger *zap.Logger

	// maxRetries is the number of retries for API calls.
	maxRetries uint64

	// now returns the current time.
	now func() time.Time

	// retryInterval is the initial backoff interval.
	retryInterval time.Duration

	// sleep waits out rate-limit windows.
	sleep sleepFunc

	// userAgent is sent with every request when set.
	userAgent string
}

// CheckAccess verifies the credentials by requesting a single account.
func (c *Client) CheckAccess(ctx context.Context) error {
	params := url.Values{}
	params.Set("count", "1")
	if _, err := c.Get(ctx, "accounts", params); err != nil {
		return fmt.Errorf("checking access: %w", err)
	}
	return nil
}

// Get issues a GET against path, relative to the base URL, and decodes the JSON response.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (Record, error) {
	body, err := c.do(ctx, c.httpClient, http.MethodGet, c.endpoint(path, params), c.maxRetries)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Post issues a POST against path with params in the query string and decodes the JSON response.
func (c *Client) Post(ctx context.Context, path string, params url.Values) (Record, error) {
	body, err := c.do(ctx, c.httpClient, http.MethodPost, c.endpoint(path, params), c.maxRetries)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Download fetches an absolute URL, decompressing gzip payloads, and decodes the JSON.
// An empty payload returns a nil Record and no error.
func (c *Client) Download(ctx context.Context, rawURL string) (Record, error) {
	body, err := c.do(ctx, c.downloadClient, http.MethodGet, rawURL, c.downloadRetries)
	if err != nil {
		return nil, err
	}

	data, err := gunzip(body)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	return decodeRecord(data)
}

// endpoint builds the full URL for an API path.
func (c *Client) endpoint(path string, params url.Values) string {
	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// do executes a request, retrying transient failures with exponential backoff.
func (c *Client) do(ctx context.Context, httpClient *http.Client, method, reqURL string, retries uint64) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	operation := func() ([]byte, error) {
		return c.attempt(ctx, httpClient, method, reqURL)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying request",
			zap.String("method", method),
			zap.String("url", reqURL),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	body, err := backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx),
		notify,
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// attempt executes a single request. Errors that must not be retried are wrapped
// with backoff.Permanent.
func (c *Client) attempt(ctx context.Context, httpClient *http.Client, method, reqURL string) ([]byte, error) {
	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if err := c.waitForRateLimit(ctx, resp.Header); err != nil {
		return nil, backoff.Permanent(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := newAPIError(resp.StatusCode, body)
		if apiErr.retryable() {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	return body, nil
}

// waitForRateLimit sleeps until the rate-limit window resets when fewer than
// rateLimitThreshold percent of the window's calls remain.
func (c *Client) waitForRateLimit(ctx context.Context, header http.Header) error {
	limit, err := strconv.ParseInt(header.Get("x-rate-limit-limit"), 10, 64)
	if err != nil || limit <= 0 {
		return nil
	}
	remaining, err := strconv.ParseInt(header.Get("x-rate-limit-remaining"), 10, 64)
	if err != nil {
		return nil
	}
	reset, err := strconv.ParseInt(header.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return nil
	}

	if remaining*100 >= rateLimitThreshold*limit {
		return nil
	}

	wait := time.Unix(reset, 0).Sub(c.now())
	c.logger.Warn("rate limit nearly exhausted",
		zap.Int64("limit", limit),
		zap.Int64("remaining", remaining),
		zap.Duration("wait", wait))
	if wait <= 0 {
		return nil
	}

	return c.sleep(ctx, wait)
}

// decodeRecord decodes a JSON object, keeping numbers exact.
func decodeRecord(body []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var record Record
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return record, nil
}

// sleepContext waits for d or until ctx is done.
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

// NewClient creates a new Twitter Ads API client.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	httpClient := o.httpClient
	downloadClient := o.httpClient
	if httpClient == nil {
		downloadClient = &http.Client{Timeout: o.timeout}

		ctx := context.WithValue(context.Background(), oauth1.HTTPClient, downloadClient)
		httpClient = oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret).
			Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
		httpClient.Timeout = o.timeout
	}

	limiter := ratelimit.NewUnlimited()
	if o.requestsPerSecond > 0 {
		limiter = ratelimit.New(o.requestsPerSecond)
	}

	return &Client{
		baseURL:         o.baseURL,
		downloadClient:  downloadClient,
		downloadRetries: o.downloadRetries,
		httpClient:      httpClient,
		limiter:         limiter,
		logger:          o.logger,
		maxRetries:      o.maxRetries,
		now:             time.Now,
		retryInterval:   o.retryInterval,
		sleep:           o.sleep,
		userAgent:       o.userAgent,
	}, nil
}

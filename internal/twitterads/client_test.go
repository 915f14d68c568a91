package twitterads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

var testCredentials = Credentials{
	AccessToken:       "token",
	AccessTokenSecret: "token-secret",
	ConsumerKey:       "key",
	ConsumerSecret:    "secret",
}

func newTestClient(t *testing.T, server *httptest.Server, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithRetryInterval(time.Millisecond),
	}, opts...)

	client, err := NewClient(testCredentials, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		creds   Credentials
		errMsg  string
		wantErr bool
	}{
		"valid credentials": {
			creds: testCredentials,
		},
		"missing consumer key": {
			creds: Credentials{
				AccessToken:       "token",
				AccessTokenSecret: "token-secret",
				ConsumerSecret:    "secret",
			},
			wantErr: true,
			errMsg:  "consumer key is required",
		},
		"missing everything": {
			creds:   Credentials{},
			wantErr: true,
			errMsg:  "access token secret is required",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tc.creds)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
				require.Equal(t, DefaultBaseURL, client.baseURL)
			}
		})
	}
}

func TestNewClientWithOptions(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		errMsg      string
		expectedURL string
		opts        []Option
		wantErr     bool
	}{
		"custom base URL trims trailing slash": {
			opts:        []Option{WithBaseURL("https://custom.api.com/12/")},
			expectedURL: "https://custom.api.com/12",
		},
		"invalid option - empty base URL": {
			opts:    []Option{WithBaseURL("  ")},
			wantErr: true,
			errMsg:  "base URL cannot be empty",
		},
		"invalid option - nil HTTP client": {
			opts:    []Option{WithHTTPClient(nil)},
			wantErr: true,
			errMsg:  "HTTP client cannot be nil",
		},
		"invalid option - zero timeout": {
			opts:    []Option{WithTimeout(0)},
			wantErr: true,
			errMsg:  "timeout must be positive",
		},
		"invalid option - negative rate limit": {
			opts:    []Option{WithRateLimit(-1)},
			wantErr: true,
			errMsg:  "requests per second cannot be negative",
		},
		"invalid option - nil logger": {
			opts:    []Option{WithLogger(nil)},
			wantErr: true,
			errMsg:  "logger cannot be nil",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(testCredentials, tc.opts...)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.expectedURL, client.baseURL)
			}
		})
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body        string
		notKind     error
		status      int
		wantCalls   int32
		wantKind    error
		wantMessage string
	}{
		"404 with default message": {
			status:      http.StatusNotFound,
			wantKind:    ErrNotFound,
			notKind:     ErrBadRequest,
			wantCalls:   1,
			wantMessage: "HTTP-error-code: 404, Message: The resource you have specified cannot be found.",
		},
		"404 with body message": {
			status:      http.StatusNotFound,
			body:        `{"errors":[{"code":"NOT_FOUND","message":"Account 42 was not found"}]}`,
			wantKind:    ErrNotFound,
			notKind:     ErrAPI,
			wantCalls:   1,
			wantMessage: "HTTP-error-code: 404, Message: Account 42 was not found",
		},
		"429 is retried and maps to rate limited": {
			status:      http.StatusTooManyRequests,
			wantKind:    ErrRateLimited,
			notKind:     ErrBadRequest,
			wantCalls:   3,
			wantMessage: "HTTP-error-code: 429, Message: API rate limit exceeded, please retry after some time.",
		},
		"401 is not retried": {
			status:      http.StatusUnauthorized,
			wantKind:    ErrUnauthorized,
			notKind:     ErrForbidden,
			wantCalls:   1,
			wantMessage: "HTTP-error-code: 401, Message: Unauthorized access for the URL.",
		},
		"503 is retried": {
			status:      http.StatusServiceUnavailable,
			wantKind:    ErrServiceUnavailable,
			notKind:     ErrInternalServer,
			wantCalls:   3,
			wantMessage: "HTTP-error-code: 503, Message: Service is unavailable.",
		},
		"unmapped status": {
			status:      http.StatusConflict,
			wantKind:    ErrAPI,
			notKind:     ErrNotFound,
			wantCalls:   1,
			wantMessage: "HTTP-error-code: 409, Message: Unknown error.",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(t, server, WithMaxRetries(2))

			_, err := client.Get(context.Background(), "accounts/42", nil)

			require.Error(t, err)
			require.ErrorIs(t, err, tc.wantKind)
			require.NotErrorIs(t, err, tc.notKind)
			require.Equal(t, tc.wantMessage, err.Error())
			require.Equal(t, tc.wantCalls, calls.Load())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.status, apiErr.StatusCode)
		})
	}
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"abc","timezone":"America/New_York"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	record, err := client.Get(context.Background(), "accounts/abc", nil)

	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "America/New_York", record["data"].(map[string]any)["timezone"])
}

func TestIsInvalidServiceLevel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":"INVALID_ACCOUNT_SERVICE_LEVEL","message":"not available"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.Get(context.Background(), "accounts/abc/promoted_accounts", nil)

	require.ErrorIs(t, err, ErrBadRequest)
	require.True(t, IsInvalidServiceLevel(err))
	require.False(t, IsInvalidServiceLevel(errors.New("other")))
	require.False(t, IsInvalidServiceLevel(&APIError{StatusCode: http.StatusBadRequest, Codes: []string{"INVALID_PARAMETER"}}))
}

func TestClient_RateLimitBackoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		remaining int
		wantSleep time.Duration
	}{
		"below threshold waits for reset": {
			remaining: 4,
			wantSleep: 90 * time.Second,
		},
		"at threshold does not wait": {
			remaining: 5,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("x-rate-limit-limit", "100")
				w.Header().Set("x-rate-limit-remaining", strconv.Itoa(tc.remaining))
				w.Header().Set("x-rate-limit-reset", strconv.FormatInt(now.Add(90*time.Second).Unix(), 10))
				_, _ = w.Write([]byte(`{"data":[]}`))
			}))
			defer server.Close()

			var slept time.Duration
			client := newTestClient(t, server, withSleep(func(_ context.Context, d time.Duration) error {
				slept = d
				return nil
			}))
			client.now = func() time.Time { return now }

			_, err := client.Get(context.Background(), "accounts", nil)

			require.NoError(t, err)
			require.Equal(t, tc.wantSleep, slept)
		})
	}
}

func TestClient_Download(t *testing.T) {
	t.Parallel()

	payload := `{"data":[{"id":"1"}],"request":{"params":{"granularity":"DAY"}}}`

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	tests := map[string]struct {
		body     []byte
		wantData bool
	}{
		"gzip payload": {
			body:     compressed.Bytes(),
			wantData: true,
		},
		"plain JSON payload": {
			body:     []byte(payload),
			wantData: true,
		},
		"empty payload": {
			body: nil,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(tc.body)
			}))
			defer server.Close()

			client := newTestClient(t, server)

			record, err := client.Download(context.Background(), server.URL+"/report.json.gz")

			require.NoError(t, err)
			if !tc.wantData {
				require.Nil(t, record)
				return
			}
			data, ok := record["data"].([]any)
			require.True(t, ok)
			require.Len(t, data, 1)
		})
	}
}

func TestClient_PostSendsQueryParams(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stats/jobs/accounts/abc", r.URL.Path)
		require.Equal(t, "CAMPAIGN", r.URL.Query().Get("entity"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id_str": "123456789012345678"}})
	}))
	defer server.Close()

	client := newTestClient(t, server)

	record, err := client.Post(context.Background(), "stats/jobs/accounts/abc", map[string][]string{"entity": {"CAMPAIGN"}})

	require.NoError(t, err)
	require.Equal(t, "123456789012345678", record["data"].(map[string]any)["id_str"])
}

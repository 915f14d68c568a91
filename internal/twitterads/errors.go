package twitterads

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// invalidServiceLevel is the API error code returned when an account's service
// level does not grant access to an endpoint.
const invalidServiceLevel = "INVALID_ACCOUNT_SERVICE_LEVEL"

// Error kinds, matched with errors.Is against an *APIError.
var (
	ErrAPI                 = errors.New("twitter ads API error")
	ErrBadRequest          = errors.New("bad request")
	ErrEnhanceYourCalm     = errors.New("enhance your calm")
	ErrForbidden           = errors.New("forbidden")
	ErrGone                = errors.New("resource gone")
	ErrInternalServer      = errors.New("internal server error")
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrNotAcceptable       = errors.New("not acceptable")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrRequestCancelled    = errors.New("request cancelled")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnprocessableEntity = errors.New("unprocessable entity")
)

// statusKinds maps HTTP status codes to their error kind and default message.
var statusKinds = map[int]struct {
	kind    error
	message string
}{
	http.StatusBadRequest:          {ErrBadRequest, "The request is missing or has a bad parameter."},
	http.StatusUnauthorized:        {ErrUnauthorized, "Unauthorized access for the URL."},
	http.StatusForbidden:           {ErrForbidden, "User does not have permission to access the resource."},
	http.StatusNotFound:            {ErrNotFound, "The resource you have specified cannot be found."},
	http.StatusMethodNotAllowed:    {ErrMethodNotAllowed, "The provided HTTP method is not supported by the URL."},
	http.StatusNotAcceptable:       {ErrNotAcceptable, "The requested format is not acceptable."},
	http.StatusRequestTimeout:      {ErrRequestCancelled, "Request is cancelled."},
	http.StatusGone:                {ErrGone, "The requested resource is no longer available."},
	420:                            {ErrEnhanceYourCalm, "API rate limit exceeded, please retry after some time."},
	http.StatusUnprocessableEntity: {ErrUnprocessableEntity, "The request could not be processed."},
	http.StatusTooManyRequests:     {ErrRateLimited, "API rate limit exceeded, please retry after some time."},
	http.StatusInternalServerError: {ErrInternalServer, "Internal error."},
	http.StatusServiceUnavailable:  {ErrServiceUnavailable, "Service is unavailable."},
}

// APIError is a non-success response from the Ads API.
type APIError struct {
	// Codes are the API error codes listed in the response body.
	Codes []string

	// Kind is the sentinel error for the status code.
	Kind error

	// Message is the human-readable error message.
	Message string

	// StatusCode is the HTTP status code.
	StatusCode int
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP-error-code: %d, Message: %s", e.StatusCode, e.Message)
}

// Is reports whether target is the kind of this error.
func (e *APIError) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the error kind.
func (e *APIError) Unwrap() error {
	return e.Kind
}

// retryable reports whether the request that produced this error may be retried.
func (e *APIError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == 420
}

// IsInvalidServiceLevel reports whether err is a 400 caused by the account's
// service level not covering the requested endpoint.
func IsInvalidServiceLevel(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusBadRequest && slices.Contains(apiErr.Codes, invalidServiceLevel)
}

// errorBody is the error envelope returned by the API.
type errorBody struct {
	Errors []struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// newAPIError builds an APIError from a status code and raw response body.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Kind:       ErrAPI,
		Message:    "Unknown error.",
		StatusCode: statusCode,
	}
	if known, ok := statusKinds[statusCode]; ok {
		apiErr.Kind = known.kind
		apiErr.Message = known.message
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Errors) == 0 {
		return apiErr
	}

	messages := make([]string, 0, len(parsed.Errors))
	for _, e := range parsed.Errors {
		if e.Message != "" {
			messages = append(messages, e.Message)
		}
		if e.Code != nil {
			apiErr.Codes = append(apiErr.Codes, fmt.Sprint(e.Code))
		}
	}
	if len(messages) > 0 {
		apiErr.Message = strings.Join(messages, "; ")
	}

	return apiErr
}

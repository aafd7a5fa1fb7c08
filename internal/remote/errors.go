// Package remote implements the outbound API surface of the sync engine:
// error classification, bounded retry with exponential backoff, and the
// REST client used by every component that talks to the backend.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/models"
)

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// Error carries a classified ErrorKind alongside the underlying cause.
type Error struct {
	Kind models.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a classified kind.
func NewError(kind models.ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, classifying raw transport errors
// when no explicit kind is attached. A nil err yields ErrorKindNone.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindNone
	}

	var kindErr *Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode)
	}

	return classifyTransport(err)
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(statusCode int) models.ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized:
		return models.ErrorKindUnauthorized
	case statusCode == http.StatusTooManyRequests:
		return models.ErrorKindRateLimited
	case statusCode >= 500:
		return models.ErrorKindServerUnavailable
	case statusCode >= 400:
		return models.ErrorKindClientError
	default:
		return models.ErrorKindNone
	}
}

// classifyTransport maps connection-level failures to an ErrorKind.
// Unknown errors are treated as timeouts: on the mobile links this client
// targets, a dropped connection and a genuine timeout are indistinguishable
// and both are retryable.
func classifyTransport(err error) models.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ErrorKindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorKindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.ErrorKindTimeout
	}

	return models.ErrorKindTimeout
}

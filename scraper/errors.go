package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// ErrSignedOut indicates the listing redirected away from the catalog, usually to a sign-in page.
var ErrSignedOut = errors.New("session is not signed in")

// ErrTimeout indicates a timeout while loading a page.
type ErrTimeout struct {
	URL string
	Err error
}

func (e ErrTimeout) Error() string { return fmt.Sprintf("timeout loading %s: %v", e.URL, e.Err) }
func (e ErrTimeout) Unwrap() error { return e.Err }

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	URL string
	Err error
}

func (e ErrConnection) Error() string { return fmt.Sprintf("connection to %s: %v", e.URL, e.Err) }
func (e ErrConnection) Unwrap() error { return e.Err }

// ErrStatus indicates a non-success HTTP status.
type ErrStatus struct {
	URL    string
	Status int
	Err    error
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
}
func (e ErrStatus) Unwrap() error { return e.Err }

// Classify maps a transport error or status code onto the typed errors above. Any status
// outside 2xx is an ErrStatus.
func Classify(target string, err error, status int) error {
	if err == nil && status == 0 {
		return nil
	}
	switch {
	case errors.Is(err, colly.ErrForbiddenDomain):
		return fmt.Errorf("%w: %s left the catalog domain", ErrSignedOut, target)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout{URL: target, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{URL: target, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{URL: target, Err: err}
	}
	if status != 0 && (status < http.StatusOK || status >= http.StatusMultipleChoices) {
		return ErrStatus{URL: target, Status: status, Err: err}
	}
	return err
}

// Label returns a short metrics label for a classified error.
func Label(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, ErrSignedOut) {
		return "signed_out"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		if status.Status >= http.StatusInternalServerError {
			return "server_error"
		}
		return "client_error"
	}
	return "other"
}

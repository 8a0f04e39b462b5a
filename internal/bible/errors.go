package bible

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind is a closed classification of fetch failures, assigned at the
// point of failure. Nothing in this package inspects error message text.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindOffline    ErrorKind = "offline"
	KindHTTPStatus ErrorKind = "http-status"
	KindParse      ErrorKind = "parse"
)

type FetchError struct {
	Kind   ErrorKind
	Source string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Source, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// classifyTransport maps a transport-level error onto a kind.
func classifyTransport(source string, err error) *FetchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Kind: KindTimeout, Source: source, Err: err}
	case errors.Is(err, context.Canceled):
		return &FetchError{Kind: KindCanceled, Source: source, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Source: source, Err: err}
	}
	// Connection refused, DNS failure, unreachable network.
	return &FetchError{Kind: KindOffline, Source: source, Err: err}
}

func statusError(source string, status int) *FetchError {
	return &FetchError{Kind: KindHTTPStatus, Source: source, Status: status, Err: fmt.Errorf("unexpected status")}
}

func parseError(source string, err error) *FetchError {
	return &FetchError{Kind: KindParse, Source: source, Err: err}
}

// IsNetworkKind reports whether the failure suggests the provider (or the
// network) is unreachable rather than the request being wrong.
func IsNetworkKind(err error) bool {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return fetchErr.Kind == KindTimeout || fetchErr.Kind == KindOffline
}

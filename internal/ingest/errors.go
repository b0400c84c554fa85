package ingest

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotYetAvailable signals the expected pre-publication 404 of a daily source.
	ErrNotYetAvailable = errors.New("not yet available")
	// ErrBrowserUnavailable is returned when a browser target is fetched without a browser.
	ErrBrowserUnavailable = errors.New("browser fetcher not configured")
)

// TransportError wraps timeouts, DNS and connection failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FetchStatusError reports a non-2xx response. It is a transport-class failure.
type FetchStatusError struct {
	URL    string
	Code   int
	Reason string
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.Code, e.Reason)
}

// ParseError means a payload was retrieved but records could not be extracted.
type ParseError struct {
	Source   string
	Category string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s/%s: %v", e.Source, e.Category, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StoreLoadError is fatal: the run aborts before any fetch.
type StoreLoadError struct {
	Err error
}

func (e *StoreLoadError) Error() string {
	return fmt.Sprintf("load history: %v", e.Err)
}

func (e *StoreLoadError) Unwrap() error {
	return e.Err
}

// StoreSaveError suppresses notification for the run.
type StoreSaveError struct {
	Err error
}

func (e *StoreSaveError) Error() string {
	return fmt.Sprintf("save history: %v", e.Err)
}

func (e *StoreSaveError) Unwrap() error {
	return e.Err
}

// Error kinds used as log fields and metric labels.
const (
	KindNotYetAvailable = "not_yet_available"
	KindStatus          = "status"
	KindTransport       = "transport"
	KindParse           = "parse"
	KindCanceled        = "canceled"
	KindOther           = "other"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	var (
		statusErr    *FetchStatusError
		transportErr *TransportError
		parseErr     *ParseError
	)
	switch {
	case errors.Is(err, ErrNotYetAvailable):
		return KindNotYetAvailable
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &parseErr):
		return KindParse
	default:
		return KindOther
	}
}

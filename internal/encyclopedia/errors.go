package encyclopedia

import (
	"errors"
	"fmt"
	"net/http"
)

// UnknownTitle is used when an error has no article context.
const UnknownTitle = "Unknown Article"

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionFailure ErrorKind = "connection_failure"
	KindUpstream          ErrorKind = "upstream_error"
	KindNotFound          ErrorKind = "not_found"
	KindFetchFailure      ErrorKind = "fetch_failure"
)

type kindDefaults struct {
	message string
	status  int
}

var defaultsByKind = map[ErrorKind]kindDefaults{
	KindTimeout:           {"The request to Wiki timed out.", http.StatusGatewayTimeout},
	KindConnectionFailure: {"Unable to connect to Wiki.", http.StatusServiceUnavailable},
	KindUpstream:          {"Wiki returned an HTTP error.", http.StatusBadGateway},
	KindNotFound:          {"The requested article could not be found.", http.StatusNotFound},
	KindFetchFailure:      {"An error occurred while fetching data.", http.StatusInternalServerError},
}

// Error is returned by every failing Fetcher operation.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int    // caller-facing status (504/503/502/404/500)
	Title      string // article involved, UnknownTitle when none
	HTTPStatus int    // upstream status, set for KindUpstream only
	Err        error  // underlying cause, may be nil
}

// NewError builds an Error with the per-kind defaults. An empty message or
// title falls back to the default message or UnknownTitle.
func NewError(kind ErrorKind, message, title string) *Error {
	d, ok := defaultsByKind[kind]
	if !ok {
		kind = KindFetchFailure
		d = defaultsByKind[KindFetchFailure]
	}
	if message == "" {
		message = d.message
	}
	if title == "" {
		title = UnknownTitle
	}
	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: d.status,
		Title:      title,
	}
}

// NewNotFoundError reports a page the wiki does not have.
func NewNotFoundError(title string) *Error {
	return NewError(KindNotFound, fmt.Sprintf("The article '%s' could not be found on Wiki.", title), title)
}

// NewUpstreamError reports an HTTP error status returned by the wiki.
func NewUpstreamError(httpStatus int) *Error {
	e := NewError(KindUpstream, "", "")
	e.HTTPStatus = httpStatus
	return e
}

func (e *Error) Error() string {
	if e.Kind == KindUpstream && e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Kind, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is a not-found fetch error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// AsError converts any error into an *Error, wrapping unknown errors as
// KindFetchFailure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	wrapped := NewError(KindFetchFailure, "", "")
	wrapped.Err = err
	return wrapped
}

// StatusOf returns the caller-facing status for err.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsError(err).StatusCode
}

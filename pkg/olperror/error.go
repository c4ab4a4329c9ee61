// Package olperror defines the error vocabulary shared by every layer of the
// read/prefetch/cache core: a small enumerated Kind plus an HTTP-status-like
// integer and message, wrapped through zeebo/errs so chains survive fmt.Errorf
// and errors.As.
package olperror

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Class tags every error that originates in this module so callers can
// distinguish SDK errors from transport or decoding failures further down
// the chain.
var Class = errs.Class("olp")

// Kind enumerates the error surface described in spec.md 7.
type Kind int

const (
	KindUnknown Kind = iota
	KindCancelled
	KindInvalidArgument
	KindPreconditionFailed
	KindNotFound
	KindNetworkConnection
	KindAuthenticationError
	KindAccessDenied
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "Cancelled"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindNotFound:
		return "NotFound"
	case KindNetworkConnection:
		return "NetworkConnection"
	case KindAuthenticationError:
		return "AuthenticationError"
	case KindAccessDenied:
		return "AccessDenied"
	case KindServiceUnavailable:
		return "ServiceUnavailable"
	default:
		return "Unknown"
	}
}

// ApiError is the error type returned across every public operation in this
// module. HTTPStatus mirrors the source HTTP code when the error originated
// from a response, or a negative transport code (see pkg/olpclient) when it
// did not.
type ApiError struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	cause      error
}

func New(kind Kind, status int, message string) *ApiError {
	return &ApiError{Kind: kind, HTTPStatus: status, Message: message}
}

func Wrap(kind Kind, status int, cause error) *ApiError {
	if cause == nil {
		return nil
	}
	return &ApiError{Kind: kind, HTTPStatus: status, Message: cause.Error(), cause: cause}
}

func (e *ApiError) Error() string {
	return Class.Wrap(fmt.Errorf("%s (%d): %s", e.Kind, e.HTTPStatus, e.Message)).Error()
}

func (e *ApiError) Unwrap() error { return e.cause }

// Is reports whether err carries the given Kind, unwrapping through
// standard error chains.
func Is(err error, kind Kind) bool {
	var ae *ApiError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// Cancelled is a shared sentinel for operations aborted by a
// CancellationContext; it carries no network status.
func Cancelled() *ApiError {
	return New(KindCancelled, 0, "operation was cancelled")
}

func NotFound(message string) *ApiError {
	return New(KindNotFound, 404, message)
}

func InvalidArgument(message string) *ApiError {
	return New(KindInvalidArgument, 0, message)
}

func PreconditionFailed(message string) *ApiError {
	return New(KindPreconditionFailed, 0, message)
}

// KindForStatus maps an HTTP response status (or one of pkg/olpclient's
// negative transport codes) to an error Kind, per spec.md 7's propagation
// rules: transport errors and 401/403/404/503 get a specific Kind, everything
// else unmatched (other 5xx included) collapses to Unknown.
func KindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuthenticationError
	case status == 403:
		return KindAccessDenied
	case status == 404:
		return KindNotFound
	case status == 503:
		return KindServiceUnavailable
	case status < 0:
		return KindNetworkConnection
	default:
		return KindUnknown
	}
}

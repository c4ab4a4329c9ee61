// Package olpclient implements the HTTP client described in spec.md 4.1:
// request shaping, retry/backoff, cancellation and request coalescing on
// top of a pluggable transport.
package olpclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
)

// Negative transport-error status codes, returned in Response.Status instead
// of a positive HTTP status when the transport itself failed.
const (
	StatusIO              = -1
	StatusCancelled        = -2
	StatusTimeout          = -3
	StatusAuth             = -4
	StatusNetworkOverload  = -5
	StatusOffline          = -6
	StatusUnknown          = -7
)

// Request is the shaped, ready-to-send HTTP request.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Headers     http.Header
	Body        []byte
	ContentType string
}

// Response is what every CallAPI invocation ultimately produces.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	Stats   model.NetworkStatistics
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	body := append([]byte(nil), r.Body...)
	headers := http.Header{}
	for k, v := range r.Headers {
		headers[k] = append([]string(nil), v...)
	}
	return &Response{Status: r.Status, Headers: headers, Body: body, Stats: r.Stats}
}

// RoundTripper is the pluggable transport seam: production code backs it
// with net/http, tests back it with internal/testtransport.
type RoundTripper interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// TokenProvider supplies a bearer token for Authorization headers. An empty
// token is treated as an authentication failure without calling the
// transport (spec.md 4.1).
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// APIKeyProvider takes precedence over TokenProvider and is appended to the
// query string as apiKey=<value>.
type APIKeyProvider interface {
	APIKey(ctx context.Context) (string, error)
}

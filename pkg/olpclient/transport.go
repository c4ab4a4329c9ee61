package olpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
)

// HTTPTransport is the production RoundTripper, backed by net/http.Client.
// It keeps the same "pluggable transport behind a one-method interface"
// seam the teacher uses for its RPC dialer, so tests can swap in
// internal/testtransport without touching Client.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport with sane idle-connection defaults.
// Passing a nil *http.Client builds one with MaxIdleConnsPerHost=64 and a
// 90s idle timeout.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return &Response{Status: StatusIO}, err
	}
	httpReq.Header = req.Headers.Clone()

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return &Response{Status: StatusCancelled}, ctx.Err()
		}
		return &Response{Status: StatusIO}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Response{Status: StatusIO}, err
	}

	return &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
		Body:    body,
		Stats:   model.NetworkStatistics{BytesDownloaded: int64(len(body)), BytesUploaded: int64(len(req.Body))},
	}, nil
}

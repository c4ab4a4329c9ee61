package olpclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is the HTTP client of spec.md 4.1: request shaping, retry/backoff,
// coalescing and cancellation over a pluggable RoundTripper.
type Client struct {
	BaseURL        string
	Transport      RoundTripper
	DefaultHeaders http.Header
	TokenProvider  TokenProvider
	APIKeyProvider APIKeyProvider
	Retry          RetrySettings
	Log            *zap.Logger

	coalescer *coalescer
	sleep     func(time.Duration)
}

// NewClient builds a Client ready to use; zero-value Retry/Log are filled
// in with sane defaults.
func NewClient(baseURL string, transport RoundTripper) *Client {
	return &Client{
		BaseURL:   baseURL,
		Transport: transport,
		Retry:     DefaultRetrySettings(),
		Log:       zap.NewNop(),
		coalescer: newCoalescer(),
		sleep:     time.Sleep,
	}
}

// CallAPI shapes req, applies auth, and runs it through the retry loop,
// coalescing concurrent identical GETs. It blocks until a terminal result
// (success, exhausted retries, or cancellation) is available.
func (c *Client) CallAPI(ctx context.Context, req *Request) (*Response, error) {
	shaped, err := c.shapeRequest(ctx, req)
	if err != nil {
		return &Response{Status: StatusAuth}, err
	}

	exec := func(ctx context.Context) (*Response, error) {
		return c.sendWithRetry(ctx, shaped)
	}

	if coalescable(shaped) {
		if c.coalescer == nil {
			c.coalescer = newCoalescer()
		}
		return c.coalescer.Do(ctx, shaped, exec)
	}
	return exec(ctx)
}

// CallAPIAsync runs CallAPI on its own goroutine bound to a
// CancellationContext; callback is invoked exactly once with the result (or
// with Status=StatusCancelled if cancelled before completion).
func (c *Client) CallAPIAsync(req *Request, callback func(*Response, error)) *CancellationContext {
	cancelCtx := NewCancellationContext()
	goCtx, cancelGo := context.WithCancel(context.Background())

	cancelCtx.ExecuteOrCancelled(func() func() {
		go func() {
			resp, err := c.CallAPI(goCtx, req)
			callback(resp, err)
		}()
		return cancelGo
	}, func() {
		callback(&Response{Status: StatusCancelled}, errCancelled)
	})

	return cancelCtx
}

func (c *Client) shapeRequest(ctx context.Context, req *Request) (*Request, error) {
	shaped := &Request{
		Method:      req.Method,
		Path:        req.Path,
		ContentType: req.ContentType,
		Body:        req.Body,
	}
	shaped.Query = url.Values{}
	for k, v := range req.Query {
		shaped.Query[k] = append([]string(nil), v...)
	}

	shaped.Headers = http.Header{}
	for k, v := range c.DefaultHeaders {
		shaped.Headers[k] = append([]string(nil), v...)
	}
	for k, v := range req.Headers {
		shaped.Headers[k] = append([]string(nil), v...) // per-call overrides default
	}
	if shaped.ContentType != "" {
		shaped.Headers.Set("Content-Type", shaped.ContentType)
	}

	if c.APIKeyProvider != nil {
		key, err := c.APIKeyProvider.APIKey(ctx)
		if err != nil {
			return nil, err
		}
		shaped.Query.Set("apiKey", key)
	} else if c.TokenProvider != nil {
		token, err := c.TokenProvider.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, errEmptyToken
		}
		shaped.Headers.Set("Authorization", "Bearer "+token)
	}

	return shaped, nil
}

func (c *Client) sendWithRetry(ctx context.Context, req *Request) (*Response, error) {
	settings := c.Retry
	maxAttempts := effectiveMaxAttempts(settings)
	retryCond := settings.RetryCondition
	if retryCond == nil {
		retryCond = DefaultRetryCondition
	}
	backdown := settings.BackdownStrategy
	if backdown == nil {
		backdown = ExponentialBackdown
	}

	deadline := time.Now().Add(settings.Timeout)
	if settings.Timeout <= 0 {
		deadline = time.Time{}
	}

	var lastResp *Response
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return &Response{Status: StatusCancelled}, errCancelled
		}

		wireReq := &Request{
			Method:      req.Method,
			Path:        c.BuildURL(req),
			Headers:     req.Headers,
			Body:        req.Body,
			ContentType: req.ContentType,
		}
		resp, err := c.Transport.RoundTrip(ctx, wireReq)
		lastResp, lastErr = resp, err

		if !retryCond(resp, err) || attempt == maxAttempts {
			return resp, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return resp, err
		}

		wait := backdown(settings.InitialBackdown, attempt)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return &Response{Status: StatusCancelled}, errCancelled
		case <-t.C:
		}
	}
	return lastResp, lastErr
}

// BuildURL renders the full URL for a shaped request against c.BaseURL.
func (c *Client) BuildURL(req *Request) string {
	u := strings.TrimRight(c.BaseURL, "/") + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

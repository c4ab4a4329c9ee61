package olpclient

import "context"

// StaticAPIKeyProvider is an APIKeyProvider that always returns the same
// value — the common case for cmd/olp-read and other simple callers that
// don't need OAuth token refresh.
type StaticAPIKeyProvider string

func (k StaticAPIKeyProvider) APIKey(ctx context.Context) (string, error) {
	return string(k), nil
}

// StaticTokenProvider is a TokenProvider that always returns the same
// bearer token.
type StaticTokenProvider string

func (t StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

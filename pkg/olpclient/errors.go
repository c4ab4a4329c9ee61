package olpclient

import "github.com/heremaps/here-data-sdk-go/pkg/olperror"

var (
	errCancelled  = olperror.Cancelled()
	errEmptyToken = olperror.New(olperror.KindAuthenticationError, StatusAuth, "token provider returned an empty token")
)

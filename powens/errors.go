package powens

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthExpired marks a 401 from the source. The client refreshes the
// credential once and retries; a second 401 fails the fetch.
var ErrAuthExpired = errors.New("auth token expired")

// apiError is a non-2xx response from the source API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api responded %d: %s", e.Status, e.Body)
}

// isTransient reports whether an error is worth a backoff retry: transport
// failures and 5xx responses are, any other HTTP status is not.
func isTransient(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	if errors.Is(err, ErrAuthExpired) {
		return false
	}
	return true // timeouts, connection resets, DNS failures
}

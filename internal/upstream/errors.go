package upstream

import (
	"fmt"
	"net/http"
)

// UpstreamError describes a failed provider call.
//
// Status is the HTTP status code of the response, or zero if no response was
// received (network failure, open circuit, cancelled context).
type UpstreamError struct {
	Provider string
	URL      string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	provider := e.Provider
	if provider == "" {
		provider = "unknown"
	}
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: %s: status %d: %s", provider, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s: %s", provider, e.URL, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// clientSide reports whether the provider rejected the request itself (4xx).
// Those responses say nothing about provider health.
func (e *UpstreamError) clientSide() bool {
	return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError
}

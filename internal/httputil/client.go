package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 15 * time.Second

// NewClient returns an HTTP client with the given per-request timeout.
// A zero timeout falls back to the default.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}

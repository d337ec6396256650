package httpclient

import (
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// New returns a client for outbound API calls. A non-positive timeout falls back to 10s.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

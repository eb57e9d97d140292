// Package health issues a single HTTP health probe against a locally
// running sidecar server.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Timeout bounds a single health check.
const Timeout = 2 * time.Second

// Checker issues health probes against 127.0.0.1.
type Checker struct {
	client *http.Client
}

// New returns a Checker with a client scoped to Timeout.
func New() *Checker {
	return &Checker{client: &http.Client{Timeout: Timeout}}
}

// Check issues a single GET to http://127.0.0.1:<port>/health and reports
// success iff the response status is 200. Any network error, non-200
// status, or context cancellation is a failure.
func (c *Checker) Check(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

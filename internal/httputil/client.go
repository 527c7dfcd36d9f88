// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/evidence-engine/internal/errs"
)

// maxBody caps response bodies read into memory.
const maxBody = 32 << 20

// Client is an HTTP client that waits on its endpoint's rate limiter and
// retries 429s before each request.
type Client struct {
	HTTP       *http.Client
	Limiters   *Limiters
	MaxRetries int
	UserAgent  string
}

// Do sends req after waiting on the limiter for its endpoint.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	limiters := c.Limiters
	if limiters == nil {
		limiters = DefaultLimiters
	}
	if err := limiters.Wait(ctx, EndpointKey(req.URL)); err != nil {
		return nil, err
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	return DoWithRetry(ctx, hc, req, c.MaxRetries)
}

// Fetch sends req and returns the body of a 2xx response. Transport
// failures and non-2xx statuses are classified as errs.ExternalService
// under op; context cancellation is returned unclassified.
func (c *Client) Fetch(ctx context.Context, req *http.Request, op string) ([]byte, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.E(errs.ExternalService, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errs.E(errs.ExternalService, op, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Ef(errs.ExternalService, op, "HTTP %d", resp.StatusCode)
	}
	return body, nil
}

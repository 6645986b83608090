// Package workerclient triggers stage worker runs over HTTP. The
// orchestrator and the workers are the same binary in the default
// deployment, but the HTTP seam allows workers to scale out separately.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StageWorkerClient = (*Client)(nil)

// Client dispatches stage runs to a worker endpoint.
type Client struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
}

// Config holds configuration for the worker client.
type Config struct {
	// BaseURL is the worker's base address, e.g. http://worker:8080
	BaseURL string

	// InternalKey authenticates service-to-service calls.
	InternalKey string

	// Timeout bounds one worker run end to end (default: 5m). Stage runs
	// are long requests; the job lease protects against hung workers.
	Timeout time.Duration
}

// New creates a worker client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		internalKey: cfg.InternalKey,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Trigger POSTs one stage run and returns the worker's raw JSON response.
// Connection-level failures are retried briefly; HTTP error statuses are
// not, since the run may have started server-side.
func (c *Client) Trigger(ctx context.Context, stage domain.JobType, req driven.StageWorkerRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/internal/workers/%s", c.baseURL, stage)

	var result json.RawMessage
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.internalKey != "" {
			httpReq.Header.Set("X-Internal-Key", c.internalKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("dispatch %s worker: %w", stage, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
		}

		result = json.RawMessage(payload)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

/*
PURPOSE:
  HTTP client for a running `iulog serve` instance.
  Ships update batches and reads writer stats.

REQUIREMENTS:
  User-specified:
  - Replay a recorded unit stream into a remote logger.
  - Check a remote logger's progress (status command).

  Implementation-discovered:
  - Needs http.Client with timeouts.
  - Batches must arrive in order, so sends are sequential and retried
    in place rather than re-queued.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go, internal/cli
  - Uses: internal/config, internal/source, internal/output

ERROR HANDLING:
  - Network errors and 5xx responses are retried MaxRetries times with
    RetryDelay between attempts.
  - 4xx responses are returned immediately (the batch is malformed).

IMPLEMENTATION RULES:
  - Use net/http.
  - Enforce timeouts.

USAGE:
  c := engine.NewClient(cfg)
  ack, err := c.Send(ctx, batch)
  stats, err := c.Stats(ctx)

SELF-HEALING INSTRUCTIONS:
  - If the server routes change, update the paths in internal/server.

RELATED FILES:
  - internal/server/http.go

MAINTENANCE:
  - Keep Ack in sync with the server's ingest response.
*/

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daryltucker/iulog/internal/config"
	"github.com/daryltucker/iulog/internal/model"
	"github.com/daryltucker/iulog/internal/output"
	"github.com/daryltucker/iulog/internal/source"
)

// Ack is the server's answer to one ingested batch.
type Ack struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
}

// Client talks to a remote iulog server.
type Client struct {
	BaseURL    string
	HTTP       *http.Client
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient creates a client for cfg.Target.
func NewClient(cfg *config.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		BaseURL:    strings.TrimRight(cfg.Target, "/"),
		HTTP:       &http.Client{Transport: transport, Timeout: cfg.Timeout},
		MaxRetries: retries,
		RetryDelay: cfg.RetryDelay,
	}
}

// Send posts one batch to /v1/updates.
func (c *Client) Send(ctx context.Context, batch []model.Update) (Ack, error) {
	body := source.EncodeBatch(batch)

	var ack Ack
	var lastErr error
	for i := 0; i < c.MaxRetries; i++ {
		if i > 0 {
			output.Logger.Info("Retrying batch...", "attempt", i+1, "size", len(batch))
			select {
			case <-ctx.Done():
				return ack, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/updates", bytes.NewReader(body))
		if err != nil {
			return ack, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ack, ctx.Err()
			}
			lastErr = fmt.Errorf("Network/Connection Error: %w", err)
			continue
		}

		retry, err := decodeResponse(resp, &ack)
		if err == nil {
			return ack, nil
		}
		if !retry {
			return ack, err
		}
		lastErr = err
	}
	return ack, lastErr
}

// Stats reads the remote writer counters from /v1/stats.
func (c *Client) Stats(ctx context.Context) (output.Stats, error) {
	var st output.Stats
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/stats", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return st, err
	}
	_, err = decodeResponse(resp, &st)
	return st, err
}

// decodeResponse closes resp.Body. retry reports whether the failure is
// worth another attempt.
func decodeResponse(resp *http.Response, into any) (retry bool, err error) {
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("bad status: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		return resp.StatusCode >= 500, err
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

package streamreplay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"
	json "github.com/goccy/go-json"
)

// Outcome classifies one submission.
type Outcome int

// Submission outcomes.
const (
	Accepted Outcome = iota
	Duplicate
	Rejected
	Failed
)

// client talks to the service API.
type client struct {
	http     *http.Client
	baseURL  string
	attempts uint
	delay    time.Duration
}

func newClient(cfg *Config) *client {
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return &client{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  cfg.BaseURL,
		attempts: attempts,
		delay:    100 * time.Millisecond,
	}
}

// submit posts o, retrying on backpressure and server errors.
func (c *client) submit(ctx context.Context, o *Observation) (Outcome, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return Failed, fmt.Errorf("marshal observation %s: %w", o.ID, err)
	}
	status, err := retry.DoWithData(
		func() (int, error) {
			status, _, err := c.do(ctx, http.MethodPost, "/observations", body)
			if err != nil {
				return 0, err
			}
			switch {
			case status == http.StatusAccepted, status == http.StatusOK:
				return status, nil
			case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
				return status, &statusError{Path: "/observations", Status: status}
			default:
				return status, fmt.Errorf("%w: status %d", ErrBadRequest, status)
			}
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxJitter(c.delay/2),
		retry.RetryIf(retryable),
	)
	switch {
	case err == nil && status == http.StatusAccepted:
		return Accepted, nil
	case err == nil:
		return Duplicate, nil
	case !retryable(err):
		return Rejected, err
	default:
		return Failed, err
	}
}

// getJSON fetches path and decodes a 200 response into v.
func (c *client) getJSON(ctx context.Context, path string, v any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &statusError{Path: path, Status: status}
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// leaderboard returns the top n rows.
func (c *client) leaderboard(ctx context.Context, n int) ([]Entry, error) {
	var out []Entry
	if err := c.getJSON(ctx, "/leaderboard?limit="+strconv.Itoa(n), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// processed reads the pipeline's processed counter from /stats.
func (c *client) processed(ctx context.Context) (int64, error) {
	var stats map[string]any
	if err := c.getJSON(ctx, "/stats", &stats); err != nil {
		return 0, err
	}
	n, _ := stats["processed"].(float64)
	return int64(n), nil
}

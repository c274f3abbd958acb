package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/combatlink/internal/domain/report"
	"github.com/okian/combatlink/internal/domain/types"
)

// Client talks to a running attribution service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, http.StatusOK, nil)
}

// OpenSession creates a session and returns its id.
func (c *Client) OpenSession(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// SubmitBatch posts one batch. duplicate reports a 200 duplicate ack.
func (c *Client) SubmitBatch(ctx context.Context, sessionID, batchID string, events []types.Event) (duplicate bool, err error) {
	body := struct {
		BatchID string        `json:"batch_id"`
		Events  []types.Event `json:"events"`
	}{BatchID: batchID, Events: events}

	var ack struct {
		Duplicate bool `json:"duplicate"`
	}
	status, err := c.send(ctx, http.MethodPost, "/sessions/"+sessionID+"/events", body, &ack)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusAccepted:
		return false, nil
	case http.StatusOK:
		return ack.Duplicate, nil
	default:
		return false, fmt.Errorf("submit batch %s: %w", batchID, statusError(status))
	}
}

// Finish closes a session and returns its report.
func (c *Client) Finish(ctx context.Context, sessionID string) (report.Report, error) {
	var r report.Report
	err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/finish", nil, http.StatusOK, &r)
	return r, err
}

// CauseOf returns the cause seq of an effect; found is false when unattributed.
func (c *Client) CauseOf(ctx context.Context, sessionID string, seq int64) (cause int64, found bool, err error) {
	var resp struct {
		Cause *types.Event `json:"cause"`
	}
	path := "/sessions/" + sessionID + "/events/" + strconv.FormatInt(seq, 10) + "/cause"
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return 0, false, err
	}
	if resp.Cause == nil {
		return 0, false, nil
	}
	return resp.Cause.Seq, true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	status, err := c.send(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("%s %s: %w", method, path, statusError(status))
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < http.StatusBadRequest && resp.Header.Get("Content-Type") != "" {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

type statusError int

func (s statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", int(s), http.StatusText(int(s)))
}

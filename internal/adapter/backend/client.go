// Package backend provides the HTTP client for the upstream support API:
// transcript fetches, session list fetches, and message sends.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xiaot623/livedesk/internal/domain"
)

// Client talks to the support backend REST API. The credential is opaque to
// the engine; it is attached here at call time and never inspected.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a backend client. timeout bounds every request; rps and
// burst throttle the overall request rate against the upstream.
func NewClient(baseURL, token string, timeout time.Duration, rps float64, burst int) *Client {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchTranscript returns the authoritative message list for a session,
// restricted to the requested visibility. Idempotent and side-effect free.
func (c *Client) FetchTranscript(ctx context.Context, sessionID string, filter domain.VisibilityFilter) ([]domain.ServerRecord, error) {
	path := fmt.Sprintf("/api/sessions/%s/messages?visibility=%s",
		url.PathEscape(sessionID), url.QueryEscape(string(filter)))

	var resp struct {
		Messages []domain.ServerRecord `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage persists one agent-authored message and returns the server
// record carrying the assigned id and timestamp.
func (c *Client) SendMessage(ctx context.Context, sessionID, body string, visibility domain.Visibility) (domain.ServerRecord, error) {
	path := fmt.Sprintf("/api/sessions/%s/messages", url.PathEscape(sessionID))
	payload := map[string]any{
		"body":       body,
		"visibility": visibility,
	}

	var rec domain.ServerRecord
	if err := c.do(ctx, http.MethodPost, path, payload, &rec); err != nil {
		return domain.ServerRecord{}, err
	}
	return rec, nil
}

// FetchSessionList returns the session summaries for the sidebar.
func (c *Client) FetchSessionList(ctx context.Context) ([]domain.SessionSummary, error) {
	var resp struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

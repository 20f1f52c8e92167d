// Package api is the HTTP client for an agi server. Plain
// request/response calls, no retry; the caller decides what to do with
// failures.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// Session is a server-side conversation descriptor.
type Session struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Agent             string             `json:"agent"`
	Provider          string             `json:"provider"`
	Model             string             `json:"model"`
	ProjectPath       string             `json:"projectPath"`
	CreatedAt         transcript.Millis  `json:"createdAt"`
	LastActiveAt      *transcript.Millis `json:"lastActiveAt"`
	TotalInputTokens  *int               `json:"totalInputTokens"`
	TotalOutputTokens *int               `json:"totalOutputTokens"`
	TotalToolTimeMS   *int64             `json:"totalToolTimeMs"`
}

type CreateSessionRequest struct {
	Agent    string `json:"agent,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Title    string `json:"title,omitempty"`
}

type UpdateSessionRequest struct {
	Agent    string `json:"agent,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type SendMessageRequest struct {
	Content  string `json:"content"`
	Agent    string `json:"agent,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type SendMessageResponse struct {
	MessageID string `json:"messageId"`
}

// Client talks to one agi server. REST calls share a timeout-bound
// http.Client; the stream call uses a separate client with no timeout,
// bounded only by its context.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the server address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSessions fetches all sessions. The server may answer with a plain
// array or a paged {items} envelope; both are accepted.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err == nil {
		return sessions, nil
	}
	var page struct {
		Items []Session `json:"items"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parse sessions response: %w", err)
	}
	return page.Items, nil
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/sessions", req)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parse create session response: %w", err)
	}
	return s, nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID string, req UpdateSessionRequest) (Session, error) {
	data, err := c.do(ctx, http.MethodPatch, "/v1/sessions/"+sessionID, req)
	if err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parse update session response: %w", err)
	}
	return s, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AbortSession stops the in-flight generation for a session.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID+"/abort", nil); err != nil {
		return fmt.Errorf("abort session: %w", err)
	}
	return nil
}

// Messages fetches the full message history for a session.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/messages", nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var msgs []transcript.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse messages response: %w", err)
	}
	return msgs, nil
}

// SendMessage enqueues a user message; the reply arrives on the feed.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req SendMessageRequest) (SendMessageResponse, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/messages", req)
	if err != nil {
		return SendMessageResponse{}, fmt.Errorf("send message: %w", err)
	}
	var resp SendMessageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return SendMessageResponse{}, fmt.Errorf("parse send message response: %w", err)
	}
	return resp, nil
}

// ResolveApproval reports the user's decision for a pending tool call.
func (c *Client) ResolveApproval(ctx context.Context, sessionID, callID string, approved bool) error {
	body := map[string]any{"callId": callID, "approved": approved}
	if _, err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/approvals", body); err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	return nil
}

// Stream opens the session's SSE feed. The caller owns the returned
// body and must close it; cancelling ctx aborts the read.
func (c *Client) Stream(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/sessions/"+sessionID+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// Package relay forwards gateway operations to the upstream conversational AI
// service. It is a single-attempt forwarder: transport failures and non-2xx
// statuses are reported to the caller as *UpstreamError, never retried here.
package relay

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

	"github.com/mlevkov/chatgate/internal/server/models"
)

// UpstreamError carries the upstream status and body so callers can decide
// whether to surface or retry.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}

// CompletionRequest is the upstream completion payload. Stream is always true
// in this gateway; the SSE proxy depends on a chunked reply.
type CompletionRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Stream    bool   `json:"stream"`
}

// Client talks to one upstream deployment with a service-level API key.
// The key is process configuration and never reaches end clients.
type Client struct {
	httpClient *http.Client
	// streamClient has no overall timeout: a completion stream lives as long
	// as the request context does.
	streamClient *http.Client
	baseURL      string
	apiKey       string
	collections  map[models.SessionKind]string
}

// NewClient builds a relay client. chatID and agentID are the upstream
// collection ids the assistant and agent session kinds route to.
func NewClient(baseURL, apiKey, chatID, agentID string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		collections: map[models.SessionKind]string{
			models.KindAssistant: "chats/" + chatID,
			models.KindAgent:     "agents/" + agentID,
		},
	}
}

func (c *Client) collectionPath(kind models.SessionKind) (string, error) {
	collection, ok := c.collections[kind]
	if !ok {
		return "", fmt.Errorf("unknown session kind: %s", kind)
	}
	return "/api/v1/" + collection, nil
}

// Forward issues one request to the upstream and returns the parsed JSON body.
func (c *Client) Forward(ctx context.Context, method, path string, payload any, query url.Values) (map[string]any, error) {

	resp, err := c.do(ctx, method, path, payload, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	parsed := map[string]any{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return parsed, nil
}

// CreateSession mirrors a session upstream and returns the upstream session id.
func (c *Client) CreateSession(ctx context.Context, kind models.SessionKind, name, userID string) (string, error) {

	base, err := c.collectionPath(kind)
	if err != nil {
		return "", err
	}

	resp, err := c.Forward(ctx, http.MethodPost, base+"/sessions",
		map[string]any{"name": name, "user_id": userID}, nil)
	if err != nil {
		return "", err
	}

	data, _ := resp["data"].(map[string]any)
	id, _ := data["id"].(string)
	if id == "" {
		return "", &UpstreamError{Status: http.StatusOK, Body: "create session response missing data.id"}
	}

	return id, nil
}

// DeleteSessions removes the mirrored sessions upstream.
func (c *Client) DeleteSessions(ctx context.Context, kind models.SessionKind, ids []string) error {

	base, err := c.collectionPath(kind)
	if err != nil {
		return err
	}

	_, err = c.Forward(ctx, http.MethodDelete, base+"/sessions", map[string]any{"ids": ids}, nil)
	return err
}

// OpenCompletionStream starts a streamed completion request and hands the
// response to the caller, who owns resp.Body. A non-2xx status is consumed
// here and returned as *UpstreamError.
func (c *Client) OpenCompletionStream(ctx context.Context, kind models.SessionKind, req CompletionRequest) (*http.Response, error) {

	base, err := c.collectionPath(kind)
	if err != nil {
		return nil, err
	}

	resp, err := c.doWith(ctx, c.streamClient, http.MethodPost, base+"/completions", req, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, query url.Values) (*http.Response, error) {
	return c.doWith(ctx, c.httpClient, method, path, payload, query)
}

func (c *Client) doWith(ctx context.Context, client *http.Client, method, path string, payload any, query url.Values) (*http.Response, error) {

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Status: 0, Body: err.Error()}
	}

	return resp, nil
}

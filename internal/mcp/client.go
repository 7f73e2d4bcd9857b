package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the HTTP client for the bridge API
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
}

// NewClient creates a new bridge API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: "qq-mcp",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetClientID sets the id the bridge logs for this client
func (c *Client) SetClientID(id string) {
	c.clientID = id
}

// SendParams is an outbound message for the bridge to deliver
type SendParams struct {
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	GroupName  string `json:"group_name,omitempty"`
	Content    string `json:"content"`
	ReplyToken string `json:"reply_token,omitempty"`
	IsMedia    bool   `json:"is_media,omitempty"`
}

// Status is the bridge's dispatch status
type Status struct {
	State    string            `json:"state"`
	Queues   map[string]int    `json:"queues"`
	Deferred map[string]int    `json:"deferred"`
	Tokens   int               `json:"tokens"`
	Stats    map[string]uint64 `json:"stats"`
}

// Message is a stored chat message
type Message struct {
	ID         string `json:"id,omitempty"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content"`
	IsBot      bool   `json:"is_bot"`
	CreateTime string `json:"create_time"`
}

// ============ Delivery ============

// Send enqueues an outbound message and returns its request id
func (c *Client) Send(ctx context.Context, params SendParams) (string, error) {
	var result struct {
		RequestID string `json:"request_id"`
	}
	if err := c.post(ctx, "/api/send", params, &result); err != nil {
		return "", err
	}
	return result.RequestID, nil
}

// NotifyToken announces a fresh reply token
func (c *Client) NotifyToken(ctx context.Context, kind, token string) error {
	return c.post(ctx, "/api/token", map[string]string{"kind": kind, "token": token}, nil)
}

// Status gets the dispatch status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ============ Messages ============

// ListMessages gets recent messages for a target, oldest first
func (c *Client) ListMessages(ctx context.Context, kind, target string, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("kind", kind)
	q.Set("target", target)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, "/api/messages?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	req.Header.Set("X-Client-ID", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

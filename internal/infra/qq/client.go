package qq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultAPIBase     = "https://api.sgroup.qq.com"
	sandboxAPIBase     = "https://sandbox.api.sgroup.qq.com"
	defaultTokenURL    = "https://bots.qq.com/app/getAppAccessToken"
	tokenRefreshMargin = 60 * time.Second
)

// Message types of the v2 message API
const (
	MsgTypeText  = 0
	MsgTypeMedia = 7
)

// File types of the v2 rich media upload API
const (
	FileTypeImage = 1
	FileTypeVideo = 2
	FileTypeVoice = 3
)

// APIError is an error body returned by the QQ OpenAPI
type APIError struct {
	Op      string `json:"-"`
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qq %s: status %d code %d: %s (trace %s)", e.Op, e.Status, e.Code, e.Message, e.TraceID)
}

// MessageResponse is the body of a successful send
type MessageResponse struct {
	ID        string `json:"id"`
	Content   string `json:"content,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// Media is an uploaded rich media reference
type Media struct {
	FileInfo string `json:"file_info"`
}

// User is a bot or user account
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Client is the QQ bot OpenAPI client
type Client struct {
	appID     string
	appSecret string
	apiBase   string
	tokenURL  string
	http      *http.Client
	logger    *slog.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new QQ client. sandbox selects the sandbox API host.
func NewClient(appID, appSecret string, sandbox bool) *Client {
	base := defaultAPIBase
	if sandbox {
		base = sandboxAPIBase
	}
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		apiBase:   base,
		tokenURL:  defaultTokenURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    slog.Default().With("component", "qq"),
	}
}

// SetEndpoints overrides the API and token endpoints
func (c *Client) SetEndpoints(apiBase, tokenURL string) {
	if apiBase != "" {
		c.apiBase = apiBase
	}
	if tokenURL != "" {
		c.tokenURL = tokenURL
	}
}

// AppID returns the bot app id
func (c *Client) AppID() string {
	return c.appID
}

// AppSecret returns the bot app secret, also used to sign webhook replies
func (c *Client) AppSecret() string {
	return c.appSecret
}

// token returns a cached access token, fetching a new one when it is about to expire
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body, _ := json.Marshal(map[string]string{
		"appId":        c.appID,
		"clientSecret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
		Code        int             `json:"code"`
		Message     string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode access token: %w", err)
	}
	if result.AccessToken == "" {
		return "", &APIError{Op: "get_app_access_token", Status: resp.StatusCode, Code: result.Code, Message: result.Message}
	}

	expiresIn := parseSeconds(result.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = 7200
	}
	c.accessToken = result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - tokenRefreshMargin)
	c.logger.Debug("access token refreshed", "expires_in", expiresIn)
	return c.accessToken, nil
}

// expires_in arrives as a string from this endpoint, but accept a number too
func parseSeconds(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, _ := strconv.Atoi(s)
		return n
	}
	var n int
	_ = json.Unmarshal(raw, &n)
	return n
}

// do performs an authenticated API call and decodes the response into out
func (c *Client) do(ctx context.Context, op, method, path string, payload, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "QQBot "+token)
	req.Header.Set("X-Union-Appid", c.appID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, TraceID: resp.Header.Get("X-Tps-Trace-Id")}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		apiErr.Op, apiErr.Status = op, resp.StatusCode
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.accessToken = ""
}

// Me returns the bot's own account
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, "get_me", http.MethodGet, "/users/@me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// PostDirectMessage sends to a guild direct-message session. imageURL is
// sent as the message image when set.
func (c *Client) PostDirectMessage(ctx context.Context, guildID, content, msgID, imageURL string) (*MessageResponse, error) {
	payload := map[string]any{}
	if content != "" {
		payload["content"] = content
	}
	if msgID != "" {
		payload["msg_id"] = msgID
	}
	if imageURL != "" {
		payload["image"] = imageURL
	}

	var resp MessageResponse
	if err := c.do(ctx, "post_dms", http.MethodPost, "/dms/"+guildID+"/messages", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// V2Message is the body of a group or one-to-one message
type V2Message struct {
	Content string `json:"content"`
	MsgType int    `json:"msg_type"`
	MsgID   string `json:"msg_id,omitempty"`
	MsgSeq  int    `json:"msg_seq,omitempty"`
	Media   *Media `json:"media,omitempty"`
}

// PostGroupMessage sends to a group
func (c *Client) PostGroupMessage(ctx context.Context, groupOpenID string, msg *V2Message) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, "post_group_message", http.MethodPost, "/v2/groups/"+groupOpenID+"/messages", msg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostC2CMessage sends to a one-to-one chat
func (c *Client) PostC2CMessage(ctx context.Context, userOpenID string, msg *V2Message) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, "post_c2c_message", http.MethodPost, "/v2/users/"+userOpenID+"/messages", msg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type uploadRequest struct {
	FileType   int    `json:"file_type"`
	URL        string `json:"url"`
	SrvSendMsg bool   `json:"srv_send_msg"`
}

// UploadGroupMedia registers a media url for sending to a group
func (c *Client) UploadGroupMedia(ctx context.Context, groupOpenID string, fileType int, url string) (*Media, error) {
	var media Media
	req := uploadRequest{FileType: fileType, URL: url}
	if err := c.do(ctx, "post_group_file", http.MethodPost, "/v2/groups/"+groupOpenID+"/files", req, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// UploadC2CMedia registers a media url for sending to a user
func (c *Client) UploadC2CMedia(ctx context.Context, userOpenID string, fileType int, url string) (*Media, error) {
	var media Media
	req := uploadRequest{FileType: fileType, URL: url}
	if err := c.do(ctx, "post_c2c_file", http.MethodPost, "/v2/users/"+userOpenID+"/files", req, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const openAPIBase = "https://open.feishu.cn/open-apis"

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	ParentID    string // quoted message, if any
	MsgType     string // text, post
	ChatType    string // p2p (private), group
	Content     string // text content with mention placeholders resolved
	Sender      *Sender
	MentionsBot bool
	CreateTime  time.Time
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
}

// IsGroup checks if the message came from a group chat
func (m *Message) IsGroup() bool {
	return m.ChatType == "group"
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID      string
	Name        string
	MemberCount int
}

// BotInfo is the bot's own account
type BotInfo struct {
	OpenID  string
	AppName string
}

// APIError is a failed Feishu OpenAPI call
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu %s: code %d: %s", e.Op, e.Code, e.Msg)
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	logger    *slog.Logger
	bot       BotInfo
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    slog.Default().With("component", "feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	if _, err := c.Bot(ctx); err != nil {
		c.logger.Warn("failed to fetch bot info", "error", err)
	}

	// Must return quickly so the SDK can ACK, otherwise Feishu redelivers
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(ctx)
}

// Bot returns the bot's own account, fetching it on first use
func (c *Client) Bot(ctx context.Context) (BotInfo, error) {
	if c.bot.OpenID != "" {
		return c.bot, nil
	}

	tokenReq := fmt.Sprintf(`{"app_id":%q,"app_secret":%q}`, c.appID, c.appSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		openAPIBase+"/auth/v3/tenant_access_token/internal", strings.NewReader(tokenReq))
	if err != nil {
		return BotInfo{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tokenResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return BotInfo{}, fmt.Errorf("get token: %w", err)
	}
	defer tokenResp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
		return BotInfo{}, fmt.Errorf("decode token: %w", err)
	}
	if tokenResult.Code != 0 {
		return BotInfo{}, &APIError{Op: "tenant_access_token", Code: tokenResult.Code, Msg: tokenResult.Msg}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, openAPIBase+"/bot/v3/info", nil)
	if err != nil {
		return BotInfo{}, fmt.Errorf("build bot info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenResult.TenantAccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return BotInfo{}, fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return BotInfo{}, fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return BotInfo{}, &APIError{Op: "bot_info", Code: botResult.Code, Msg: botResult.Msg}
	}

	c.bot = BotInfo{OpenID: botResult.Bot.OpenID, AppName: botResult.Bot.AppName}
	c.logger.Info("bot identity", "open_id", c.bot.OpenID, "name", c.bot.AppName)
	return c.bot, nil
}

// handleMessage converts a receive event and passes it to the handler
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	msg := c.convertEvent(event)
	if msg == nil {
		return
	}
	c.logger.Debug("message received", "type", msg.MsgType, "chat_type", msg.ChatType,
		"chat_id", msg.ChatID, "msg_id", msg.MsgID)
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// convertEvent returns nil for events the bridge ignores: the bot's own
// messages and unsupported message types
func (c *Client) convertEvent(event *larkim.P2MessageReceiveV1) *Message {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	rawMsg := event.Event.Message
	if event.Event.Sender != nil && deref(event.Event.Sender.SenderType) == "app" {
		return nil
	}

	msg := &Message{
		ChatID:     deref(rawMsg.ChatId),
		MsgID:      deref(rawMsg.MessageId),
		ParentID:   deref(rawMsg.ParentId),
		MsgType:    deref(rawMsg.MessageType),
		ChatType:   deref(rawMsg.ChatType),
		CreateTime: parseMillis(deref(rawMsg.CreateTime)),
	}
	if msg.MsgID == "" || msg.ChatID == "" {
		return nil
	}

	if event.Event.Sender != nil {
		msg.Sender = &Sender{SenderType: deref(event.Event.Sender.SenderType)}
		if event.Event.Sender.SenderId != nil {
			msg.Sender.SenderID = deref(event.Event.Sender.SenderId.OpenId)
		}
	}

	// mention key (@_user_1) to display name
	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention.Id != nil && c.bot.OpenID != "" && deref(mention.Id.OpenId) == c.bot.OpenID {
			msg.MentionsBot = true
			// the bot mention is dropped from the text
			if mention.Key != nil {
				mentionMap[*mention.Key] = ""
			}
			continue
		}
		if mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = "@" + *mention.Name
		}
	}

	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(deref(rawMsg.Content), mentionMap)
	case "post":
		msg.Content = parsePostContent(deref(rawMsg.Content), mentionMap)
	default:
		c.logger.Debug("unsupported message type", "type", msg.MsgType)
		return nil
	}
	return msg
}

// parseTextContent extracts text from a text message
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(replaceMentions(parsed.Text, mentionMap))
}

// parsePostContent extracts the text of a rich text message
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var b strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				b.WriteString(elem.Text)
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					b.WriteString(name)
				} else if elem.UserID != "" {
					b.WriteString("@" + elem.UserID)
				}
			}
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return strings.TrimSpace(replaceMentions(strings.Join(lines, "\n"), mentionMap))
}

// replaceMentions replaces mention placeholders (@_user_1) with their names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, name)
	}
	return text
}

// TextContent builds the content of a text message
func TextContent(text string) string {
	data, _ := json.Marshal(map[string]string{"text": text})
	return string(data)
}

// ImageContent builds the content of an image message
func ImageContent(imageKey string) string {
	data, _ := json.Marshal(map[string]string{"image_key": imageKey})
	return string(data)
}

// Send creates a message in a chat and returns its id
func (c *Client) Send(ctx context.Context, chatID, msgType, content, uuid string) (string, error) {
	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(chatID).
		MsgType(msgType).
		Content(content)
	if uuid != "" {
		body = body.Uuid(uuid)
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(body.Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "create_message", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return "", nil
	}
	return deref(resp.Data.MessageId), nil
}

// Reply replies to messageID and returns the id of the reply.
// uuid makes the call idempotent for an hour.
func (c *Client) Reply(ctx context.Context, messageID, msgType, content, uuid string) (string, error) {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(msgType).
			Content(content).
			Uuid(uuid).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return "", fmt.Errorf("reply message failed: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "reply_message", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return "", nil
	}
	return deref(resp.Data.MessageId), nil
}

// GetChatInfo retrieves the name and size of a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "get_chat", Code: resp.Code, Msg: resp.Msg}
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data != nil {
		info.Name = deref(resp.Data.Name)
		info.MemberCount, _ = strconv.Atoi(deref(resp.Data.UserCount))
	}
	return info, nil
}

func parseMillis(s string) time.Time {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

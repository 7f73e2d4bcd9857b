package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients
const Version = "v1.0.0"

// Tools exposes the bridge API as MCP tools
type Tools struct {
	client *Client
}

// NewServer creates an MCP server with every bridge tool registered
func NewServer(client *Client) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "qq-bot-tools",
		Version: Version,
	}, nil)

	t := &Tools{client: client}

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "send_message",
		Description: "Queue a message for delivery. kind is direct_message, group_reply or user_reply. Pass reply_token to answer a specific inbound message; without it the bridge reuses the latest reply token of that kind or holds the message until one arrives.",
	}, t.SendMessage)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "notify_token",
		Description: "Announce a fresh reply token, the id of a newly received message. Held messages of that kind are sent with it.",
	}, t.NotifyToken)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "delivery_status",
		Description: "Get the delivery loop state, queue and held-message counts, and send statistics.",
	}, t.DeliveryStatus)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_chat_history",
		Description: "Get recent stored messages of a group, user or direct-message conversation, oldest first.",
	}, t.ChatHistory)

	return server
}

// SendMessageInput is the input for send_message
type SendMessageInput struct {
	Kind       string `json:"kind" jsonschema:"direct_message, group_reply or user_reply"`
	Target     string `json:"target" jsonschema:"guild id, group openid or user openid"`
	Content    string `json:"content" jsonschema:"text to send, or the image URL when is_media is set"`
	ReplyToken string `json:"reply_token,omitempty" jsonschema:"id of the inbound message being answered"`
	IsMedia    bool   `json:"is_media,omitempty" jsonschema:"send content as an image"`
}

// SendMessageOutput is the output for send_message
type SendMessageOutput struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendMessage queues a message on the bridge
func (t *Tools) SendMessage(ctx context.Context, req *mcpsdk.CallToolRequest, input SendMessageInput) (*mcpsdk.CallToolResult, SendMessageOutput, error) {
	id, err := t.client.Send(ctx, SendParams{
		Kind:       input.Kind,
		Target:     input.Target,
		Content:    input.Content,
		ReplyToken: input.ReplyToken,
		IsMedia:    input.IsMedia,
	})
	if err != nil {
		return nil, SendMessageOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, SendMessageOutput{Success: true, RequestID: id}, nil
}

// NotifyTokenInput is the input for notify_token
type NotifyTokenInput struct {
	Kind  string `json:"kind" jsonschema:"direct_message, group_reply or user_reply"`
	Token string `json:"token" jsonschema:"id of the newly received message"`
}

// NotifyTokenOutput is the output for notify_token
type NotifyTokenOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NotifyToken announces a fresh reply token to the bridge
func (t *Tools) NotifyToken(ctx context.Context, req *mcpsdk.CallToolRequest, input NotifyTokenInput) (*mcpsdk.CallToolResult, NotifyTokenOutput, error) {
	if err := t.client.NotifyToken(ctx, input.Kind, input.Token); err != nil {
		return nil, NotifyTokenOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, NotifyTokenOutput{Success: true}, nil
}

// DeliveryStatusInput is empty
type DeliveryStatusInput struct{}

// DeliveryStatusOutput is the output for delivery_status
type DeliveryStatusOutput struct {
	Status *Status `json:"status,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// DeliveryStatus reports the bridge's dispatch status
func (t *Tools) DeliveryStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input DeliveryStatusInput) (*mcpsdk.CallToolResult, DeliveryStatusOutput, error) {
	status, err := t.client.Status(ctx)
	if err != nil {
		return nil, DeliveryStatusOutput{Error: err.Error()}, nil
	}
	return nil, DeliveryStatusOutput{Status: status}, nil
}

// ChatHistoryInput is the input for get_chat_history
type ChatHistoryInput struct {
	Kind   string `json:"kind" jsonschema:"direct_message, group_reply or user_reply"`
	Target string `json:"target" jsonschema:"guild id, group openid or user openid"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of messages (default 20)"`
}

// ChatHistoryOutput is the output for get_chat_history
type ChatHistoryOutput struct {
	Messages []Message `json:"messages"`
	Error    string    `json:"error,omitempty"`
}

// ChatHistory gets recent stored messages of a target
func (t *Tools) ChatHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input ChatHistoryInput) (*mcpsdk.CallToolResult, ChatHistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	messages, err := t.client.ListMessages(ctx, input.Kind, input.Target, limit)
	if err != nil {
		return nil, ChatHistoryOutput{Error: err.Error()}, nil
	}
	return nil, ChatHistoryOutput{Messages: messages}, nil
}

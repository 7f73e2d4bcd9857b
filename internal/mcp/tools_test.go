package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestSendMessage(t *testing.T) {
	var got SendParams
	var clientID string
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/send" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		clientID = r.Header.Get("X-Client-ID")
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-1"})
	})
	tools := &Tools{client: client}

	_, out, err := tools.SendMessage(context.Background(), nil, SendMessageInput{
		Kind:       "group_reply",
		Target:     "g1",
		Content:    "hello",
		ReplyToken: "msg-1",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !out.Success || out.RequestID != "req-1" {
		t.Errorf("Unexpected output: %+v", out)
	}
	if got.Kind != "group_reply" || got.Target != "g1" || got.ReplyToken != "msg-1" {
		t.Errorf("Unexpected request: %+v", got)
	}
	if clientID != "qq-mcp" {
		t.Errorf("Expected client id qq-mcp, got %s", clientID)
	}
}

func TestSendMessage_BridgeError(t *testing.T) {
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown surface kind", http.StatusBadRequest)
	})
	tools := &Tools{client: client}

	_, out, err := tools.SendMessage(context.Background(), nil, SendMessageInput{Kind: "x", Target: "g1", Content: "hi"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Success {
		t.Error("Expected failure")
	}
	if out.Error != "HTTP 400: unknown surface kind" {
		t.Errorf("Unexpected error text: %q", out.Error)
	}
}

func TestNotifyToken(t *testing.T) {
	var got map[string]string
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	tools := &Tools{client: client}

	_, out, err := tools.NotifyToken(context.Background(), nil, NotifyTokenInput{Kind: "user_reply", Token: "msg-2"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !out.Success {
		t.Errorf("Expected success, got %+v", out)
	}
	if got["kind"] != "user_reply" || got["token"] != "msg-2" {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestDeliveryStatus(t *testing.T) {
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"running","queues":{"group_reply":1},"deferred":{},"tokens":2,"stats":{"sent":5}}`))
	})
	tools := &Tools{client: client}

	_, out, err := tools.DeliveryStatus(context.Background(), nil, DeliveryStatusInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Status == nil {
		t.Fatalf("Expected status, got error %q", out.Error)
	}
	if out.Status.State != "running" || out.Status.Tokens != 2 || out.Status.Stats["sent"] != 5 {
		t.Errorf("Unexpected status: %+v", out.Status)
	}
}

func TestChatHistory(t *testing.T) {
	var query string
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []Message{
				{ID: "m1", Kind: "group_reply", Target: "g1", Content: "hi"},
			},
		})
	})
	tools := &Tools{client: client}

	_, out, err := tools.ChatHistory(context.Background(), nil, ChatHistoryInput{Kind: "group_reply", Target: "g1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].ID != "m1" {
		t.Errorf("Unexpected messages: %+v", out.Messages)
	}
	if query != "kind=group_reply&limit=20&target=g1" {
		t.Errorf("Unexpected query %q", query)
	}
}

func TestNewServer(t *testing.T) {
	if NewServer(NewClient("http://127.0.0.1:1")) == nil {
		t.Fatal("Expected server")
	}
}

package feishu

import (
	"testing"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

func ptr(s string) *string { return &s }

func receiveEvent(senderType, chatType, msgType, content string, mentions ...*larkim.MentionEvent) *larkim.P2MessageReceiveV1 {
	return &larkim.P2MessageReceiveV1{
		Event: &larkim.P2MessageReceiveV1Data{
			Sender: &larkim.EventSender{
				SenderId:   &larkim.UserId{OpenId: ptr("ou_user")},
				SenderType: ptr(senderType),
			},
			Message: &larkim.EventMessage{
				MessageId:   ptr("om_1"),
				ParentId:    ptr("om_0"),
				CreateTime:  ptr("1709294400000"),
				ChatId:      ptr("oc_1"),
				ChatType:    ptr(chatType),
				MessageType: ptr(msgType),
				Content:     ptr(content),
				Mentions:    mentions,
			},
		},
	}
}

func TestConvertEvent_Text(t *testing.T) {
	c := NewClient("app", "secret")
	c.bot = BotInfo{OpenID: "ou_bot"}
	ev := receiveEvent("user", "group", "text", `{"text":"@_user_1 /gpt hi @_user_2"}`,
		&larkim.MentionEvent{Key: ptr("@_user_1"), Name: ptr("Bot"), Id: &larkim.UserId{OpenId: ptr("ou_bot")}},
		&larkim.MentionEvent{Key: ptr("@_user_2"), Name: ptr("Alice"), Id: &larkim.UserId{OpenId: ptr("ou_alice")}},
	)

	msg := c.convertEvent(ev)
	if msg == nil {
		t.Fatal("Expected message")
	}
	if msg.Content != "/gpt hi @Alice" {
		t.Errorf("Unexpected content: %q", msg.Content)
	}
	if !msg.MentionsBot {
		t.Error("Expected bot mention")
	}
	if !msg.IsGroup() || msg.ParentID != "om_0" || msg.Sender.SenderID != "ou_user" {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if msg.CreateTime.UnixMilli() != 1709294400000 {
		t.Errorf("Unexpected create time: %v", msg.CreateTime)
	}
}

func TestConvertEvent_Ignored(t *testing.T) {
	c := NewClient("app", "secret")
	if msg := c.convertEvent(receiveEvent("app", "p2p", "text", `{"text":"echo"}`)); msg != nil {
		t.Error("Expected the bot's own message to be ignored")
	}
	if msg := c.convertEvent(receiveEvent("user", "p2p", "image", `{"image_key":"k"}`)); msg != nil {
		t.Error("Expected image message to be ignored")
	}
	if msg := c.convertEvent(&larkim.P2MessageReceiveV1{}); msg != nil {
		t.Error("Expected empty event to be ignored")
	}
}

func TestParsePostContent(t *testing.T) {
	content := `{"title":"Title","content":[[{"tag":"text","text":"hello "},{"tag":"at","user_id":"@_user_1"}],[{"tag":"img","image_key":"k"}]]}`
	got := parsePostContent(content, map[string]string{"@_user_1": "@Bob"})
	if got != "Title\nhello @Bob" {
		t.Errorf("Unexpected post text: %q", got)
	}
}

func TestContentBuilders(t *testing.T) {
	if got := TextContent(`say "hi"`); got != `{"text":"say \"hi\""}` {
		t.Errorf("Unexpected text content: %s", got)
	}
	if got := ImageContent("img_1"); got != `{"image_key":"img_1"}` {
		t.Errorf("Unexpected image content: %s", got)
	}
}

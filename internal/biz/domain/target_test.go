package domain

import (
	"testing"
	"time"
)

func TestParseSurfaceKind(t *testing.T) {
	tests := []struct {
		in      string
		want    SurfaceKind
		wantErr bool
	}{
		{"direct_message", SurfaceDirectMessage, false},
		{"dm", SurfaceDirectMessage, false},
		{"GROUP", SurfaceGroupReply, false},
		{"c2c", SurfaceUserReply, false},
		{"user_reply", SurfaceUserReply, false},
		{"channel", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSurfaceKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSurfaceKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSurfaceKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTargetRef_Validate(t *testing.T) {
	if err := GroupTarget("g1", nil).Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := UserTarget("").Validate(); err == nil {
		t.Error("Expected error for empty user id")
	}
	if err := (TargetRef{Kind: SurfaceKind(7), UserID: "u"}).Validate(); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestInboundMessage_ReplyTarget(t *testing.T) {
	group := &GroupSnapshot{ID: "g1", Name: "Gophers", MemberCount: 12}
	msg := &InboundMessage{ID: "MSG1", Kind: SurfaceGroupReply, TargetID: "g1", Group: group}

	target := msg.ReplyTarget()
	if target.Kind != SurfaceGroupReply || target.GroupID != "g1" {
		t.Errorf("Unexpected target: %v", target)
	}
	if target.Group == nil || target.Group.Name != "Gophers" {
		t.Error("Expected group snapshot to be carried")
	}

	dm := &InboundMessage{Kind: SurfaceDirectMessage, TargetID: "guild-1"}
	if got := dm.ReplyTarget().String(); got != "direct_message:guild-1" {
		t.Errorf("Expected direct_message:guild-1, got %s", got)
	}
}

func TestInboundMessage_CommandArgs(t *testing.T) {
	msg := &InboundMessage{Content: "  /gpt  what is a goroutine "}
	args, ok := msg.CommandArgs("/gpt")
	if !ok {
		t.Fatal("Expected command to match")
	}
	if args != "what is a goroutine" {
		t.Errorf("Unexpected args: %q", args)
	}

	if _, ok := msg.CommandArgs("/help"); ok {
		t.Error("Expected /help not to match")
	}
}

func TestNewSentMessage(t *testing.T) {
	bot := BotIdentity{ID: "bot-1", Name: "Wechatter"}
	target := GroupTarget("g1", &GroupSnapshot{ID: "g1", Name: "Gophers"})

	msg := NewSentMessage(bot, target, "hi", "pm-1", false, time.Now())
	if !msg.IsBot || msg.SenderID != "bot-1" {
		t.Errorf("Expected bot attribution, got %+v", msg)
	}
	if msg.TargetID != "g1" || msg.GroupName != "Gophers" {
		t.Errorf("Unexpected target fields: %+v", msg)
	}
	if !msg.IsFromBot("someone-else") {
		t.Error("Expected IsFromBot to honour IsBot")
	}
}

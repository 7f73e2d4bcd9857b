package domain

import (
	"strings"
	"time"
)

// InboundMessage is a message received from the platform.
// Its platform message id doubles as the reply token for answers to it.
type InboundMessage struct {
	ID         string
	Kind       SurfaceKind
	TargetID   string // where a reply goes: guild, group openid or user openid
	Group      *GroupSnapshot
	SenderID   string
	SenderName string
	Content    string
	QuotedID   string // id of the quoted message, if any
	CreateTime time.Time
}

// ReplyTarget returns the target a reply to this message goes to
func (m *InboundMessage) ReplyTarget() TargetRef {
	switch m.Kind {
	case SurfaceGroupReply:
		return GroupTarget(m.TargetID, m.Group)
	case SurfaceUserReply:
		return UserTarget(m.TargetID)
	default:
		return DirectTarget(m.TargetID)
	}
}

// IsGroup checks if this is a group message
func (m *InboundMessage) IsGroup() bool {
	return m.Kind == SurfaceGroupReply
}

// CommandArgs returns the text after prefix when the message starts with it
func (m *InboundMessage) CommandArgs(prefix string) (string, bool) {
	text := strings.TrimSpace(m.Content)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(text, prefix)), true
}

// ToMessage converts to a stored message record
func (m *InboundMessage) ToMessage() *Message {
	msg := &Message{
		ID:         m.ID,
		Kind:       m.Kind,
		TargetID:   m.TargetID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		CreateTime: m.CreateTime,
	}
	if m.Group != nil {
		msg.GroupName = m.Group.Name
	}
	return msg
}

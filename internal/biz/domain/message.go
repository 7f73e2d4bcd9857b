package domain

import "time"

// Message represents a stored message entity
type Message struct {
	ID         string // platform message id, may be empty
	Kind       SurfaceKind
	TargetID   string // conversation, group or user id
	GroupName  string
	Content    string
	SenderID   string
	SenderName string
	IsMedia    bool
	CreateTime time.Time
	IsBot      bool // Whether the message was sent by the bot
}

// IsFromBot checks if the message is from the bot
func (m *Message) IsFromBot(botID string) bool {
	return m.IsBot || m.SenderID == botID
}

// IsAfter checks if the message is after the specified time
func (m *Message) IsAfter(t time.Time) bool {
	return m.CreateTime.After(t)
}

// BotIdentity is who the bot is on the platform
type BotIdentity struct {
	ID   string
	Name string
}

// NewSentMessage builds the record of a message the bot delivered
func NewSentMessage(bot BotIdentity, target TargetRef, content, platformMsgID string, isMedia bool, at time.Time) *Message {
	msg := &Message{
		ID:         platformMsgID,
		Kind:       target.Kind,
		TargetID:   target.ID(),
		Content:    content,
		SenderID:   bot.ID,
		SenderName: bot.Name,
		IsMedia:    isMedia,
		CreateTime: at,
		IsBot:      true,
	}
	if target.Group != nil {
		msg.GroupName = target.Group.Name
	}
	return msg
}

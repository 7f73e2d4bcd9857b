package domain

import (
	"fmt"
	"time"
)

// SendRequest is one outbound message waiting for delivery
type SendRequest struct {
	ID         string // correlation id for logs
	Content    string // text, or a media reference when IsMedia is set
	Target     TargetRef
	ReplyToken string // empty for proactive sends
	IsMedia    bool
	RetryCount int
	EnqueuedAt time.Time
	Delayed    bool   // delayed-reply note already appended
	LastError  string // error of the last failed attempt
}

// HasToken checks if the request is a reply
func (r *SendRequest) HasToken() bool {
	return r.ReplyToken != ""
}

// MarkDelayed drops the reply token and notes in the content that this reply
// arrived late. The note is appended at most once.
func (r *SendRequest) MarkDelayed() {
	r.ReplyToken = ""
	if r.Delayed || r.IsMedia {
		r.Delayed = true
		return
	}
	r.Content = fmt.Sprintf("%s\n\n[delayed reply, originally queued at %s]",
		r.Content, r.EnqueuedAt.Format("15:04:05"))
	r.Delayed = true
}

// SendResult is what the platform returned for a successful send
type SendResult struct {
	MessageID string // platform message id, may be empty
	Content   string // content as accepted by the platform, empty if unchanged
}

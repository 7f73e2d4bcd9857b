package domain

import (
	"fmt"
	"strings"
)

// SurfaceKind is the platform surface an outbound message is delivered on
type SurfaceKind int

const (
	SurfaceDirectMessage SurfaceKind = iota // guild direct message, no sequence
	SurfaceGroupReply                       // reply in a group, sequenced
	SurfaceUserReply                        // reply in a one-to-one chat, sequenced

	// NumSurfaceKinds is the number of surface kinds
	NumSurfaceKinds = 3
)

// SurfaceKinds lists every surface kind in dispatch order
var SurfaceKinds = [NumSurfaceKinds]SurfaceKind{
	SurfaceDirectMessage,
	SurfaceGroupReply,
	SurfaceUserReply,
}

func (k SurfaceKind) String() string {
	switch k {
	case SurfaceDirectMessage:
		return "direct_message"
	case SurfaceGroupReply:
		return "group_reply"
	case SurfaceUserReply:
		return "user_reply"
	default:
		return fmt.Sprintf("surface(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds
func (k SurfaceKind) Valid() bool {
	return k >= SurfaceDirectMessage && k < NumSurfaceKinds
}

// ParseSurfaceKind parses the string form of a surface kind.
// Short aliases ("dm", "group", "c2c") are accepted as well.
func ParseSurfaceKind(s string) (SurfaceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct_message", "dm", "direct":
		return SurfaceDirectMessage, nil
	case "group_reply", "group":
		return SurfaceGroupReply, nil
	case "user_reply", "user", "c2c":
		return SurfaceUserReply, nil
	}
	return 0, fmt.Errorf("unknown surface kind: %q", s)
}

// GroupSnapshot is what was known about a group when a request was produced
type GroupSnapshot struct {
	ID          string
	Name        string
	MemberCount int
}

// TargetRef identifies where an outbound message goes.
// Kind selects which of the identifier fields is meaningful.
type TargetRef struct {
	Kind           SurfaceKind
	ConversationID string         // SurfaceDirectMessage
	GroupID        string         // SurfaceGroupReply
	Group          *GroupSnapshot // SurfaceGroupReply, optional
	UserID         string         // SurfaceUserReply
}

// DirectTarget targets a direct-message conversation
func DirectTarget(conversationID string) TargetRef {
	return TargetRef{Kind: SurfaceDirectMessage, ConversationID: conversationID}
}

// GroupTarget targets a group. group may be nil.
func GroupTarget(groupID string, group *GroupSnapshot) TargetRef {
	return TargetRef{Kind: SurfaceGroupReply, GroupID: groupID, Group: group}
}

// UserTarget targets a one-to-one chat with a user
func UserTarget(userID string) TargetRef {
	return TargetRef{Kind: SurfaceUserReply, UserID: userID}
}

// ID returns the platform identifier of the target
func (t TargetRef) ID() string {
	switch t.Kind {
	case SurfaceDirectMessage:
		return t.ConversationID
	case SurfaceGroupReply:
		return t.GroupID
	case SurfaceUserReply:
		return t.UserID
	}
	return ""
}

// Validate checks that the identifier for Kind is set
func (t TargetRef) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("invalid target kind %d", int(t.Kind))
	}
	if t.ID() == "" {
		return fmt.Errorf("%s target requires an id", t.Kind)
	}
	return nil
}

func (t TargetRef) String() string {
	return t.Kind.String() + ":" + t.ID()
}

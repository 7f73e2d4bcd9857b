package qq

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Webhook opcodes
const (
	OpDispatch       = 0
	OpCallbackAck    = 12
	OpCallbackVerify = 13
)

// Message event types
const (
	EventGroupAt = "GROUP_AT_MESSAGE_CREATE"
	EventC2C     = "C2C_MESSAGE_CREATE"
	EventDirect  = "DIRECT_MESSAGE_CREATE"
)

// Signature headers of a webhook call
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// ErrBadSignature is returned for a webhook body whose signature does not verify
var ErrBadSignature = errors.New("qq webhook: bad signature")

// Payload is the envelope of every webhook call
type Payload struct {
	ID   string          `json:"id"`
	Op   int             `json:"op"`
	Seq  int             `json:"s"`
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// Author is the sender of a message event
type Author struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	MemberOpenID string `json:"member_openid"`
	UserOpenID   string `json:"user_openid"`
}

// MessageReference points at a quoted message
type MessageReference struct {
	MessageID string `json:"message_id"`
}

// MessageEvent is the data of a message event.
// Which id fields are set depends on the event type.
type MessageEvent struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Timestamp   string            `json:"timestamp"`
	GroupOpenID string            `json:"group_openid"`
	GuildID     string            `json:"guild_id"`
	ChannelID   string            `json:"channel_id"`
	Author      Author            `json:"author"`
	Reference   *MessageReference `json:"message_reference,omitempty"`
}

// CreatedAt parses the event timestamp, falling back to now
func (e *MessageEvent) CreatedAt() time.Time {
	if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return t
	}
	return time.Now()
}

// Text returns the content with the leading bot mention stripped
func (e *MessageEvent) Text() string {
	text := strings.TrimSpace(e.Content)
	if strings.HasPrefix(text, "<@") {
		if i := strings.Index(text, ">"); i > 0 {
			text = strings.TrimSpace(text[i+1:])
		}
	}
	return text
}

type verifyData struct {
	PlainToken string `json:"plain_token"`
	EventTs    string `json:"event_ts"`
}

// VerifyResponse is the answer to an OpCallbackVerify call
type VerifyResponse struct {
	PlainToken string `json:"plain_token"`
	Signature  string `json:"signature"`
}

// Signer signs and verifies webhook calls with the key derived from the bot secret
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner derives the ed25519 key pair from secret.
// The secret is repeated until it covers the seed size.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("qq webhook: empty secret")
	}
	seed := secret
	for len(seed) < ed25519.SeedSize {
		seed += secret
	}
	priv := ed25519.NewKeyFromSeed([]byte(seed[:ed25519.SeedSize]))
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign signs timestamp followed by body and returns the hex signature
func (s *Signer) Sign(timestamp string, body []byte) string {
	msg := append([]byte(timestamp), body...)
	return hex.EncodeToString(ed25519.Sign(s.priv, msg))
}

// Verify checks a hex signature over timestamp followed by body
func (s *Signer) Verify(signature, timestamp string, body []byte) error {
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	msg := append([]byte(timestamp), body...)
	if !ed25519.Verify(s.pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// AnswerVerify builds the response to an OpCallbackVerify payload
func (s *Signer) AnswerVerify(p *Payload) (*VerifyResponse, error) {
	var data verifyData
	if err := json.Unmarshal(p.Data, &data); err != nil {
		return nil, fmt.Errorf("decode verify data: %w", err)
	}
	return &VerifyResponse{
		PlainToken: data.PlainToken,
		Signature:  s.Sign(data.EventTs, []byte(data.PlainToken)),
	}, nil
}

// ParseMessageEvent decodes the data of a message dispatch
func ParseMessageEvent(p *Payload) (*MessageEvent, error) {
	var ev MessageEvent
	if err := json.Unmarshal(p.Data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Type, err)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("decode %s: missing message id", p.Type)
	}
	return &ev, nil
}

package domain

import "time"

// TokenState tracks how a reply token has been used
type TokenState struct {
	Token      string
	Kind       SurfaceKind
	Sequence   int // last sequence handed out, 0 while unused
	LastUsedAt time.Time
}

// TokenConfig represents reply token limits (value object)
type TokenConfig struct {
	MaxReplies int           // replies one token may carry
	Expiry     time.Duration // idle time after which the token is dead
}

// DefaultTokenConfig returns the platform limits
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		MaxReplies: 5,
		Expiry:     300 * time.Second,
	}
}

// IsExpired checks whether the token sat idle longer than the expiry window
func (s *TokenState) IsExpired(cfg TokenConfig, now time.Time) bool {
	return now.Sub(s.LastUsedAt) > cfg.Expiry
}

// IsExhausted checks whether the next sequence would exceed the reply budget
func (s *TokenState) IsExhausted(cfg TokenConfig) bool {
	return s.Sequence >= cfg.MaxReplies
}

// Check returns nil if the token can carry another reply
func (s *TokenState) Check(cfg TokenConfig, now time.Time) error {
	if s.IsExpired(cfg, now) {
		return ErrTokenExpired
	}
	if s.IsExhausted(cfg) {
		return ErrTokenExhausted
	}
	return nil
}

// Advance hands out the next sequence number
func (s *TokenState) Advance(now time.Time) int {
	s.Sequence++
	s.LastUsedAt = now
	return s.Sequence
}

// Touch updates the last used time without consuming a sequence
func (s *TokenState) Touch(now time.Time) {
	s.LastUsedAt = now
}

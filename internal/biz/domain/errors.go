package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExhausted means the reply token already carried the maximum number of replies
	ErrTokenExhausted = errors.New("reply token exhausted")
	// ErrTokenExpired means the reply token has not been used within the expiry window
	ErrTokenExpired = errors.New("reply token expired")
	// ErrTokenUnknown means the reply token was never registered or has been swept
	ErrTokenUnknown = errors.New("reply token unknown")
	// ErrTransport is the class of every failed platform send
	ErrTransport = errors.New("platform transport failure")
	// ErrRecorder is the class of every failed sent-message persist
	ErrRecorder = errors.New("sent message recorder failure")
	// ErrDispatcherStopped is returned to producers once the dispatch loop has exited
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// PlatformError is a failed platform API call
type PlatformError struct {
	Op      string // e.g. "post_group_message"
	Status  int    // HTTP status, 0 when the request never completed
	Code    int    // platform error code, 0 when absent
	Message string
}

func (e *PlatformError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d code %d: %s", e.Op, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// Is makes every PlatformError match ErrTransport
func (e *PlatformError) Is(target error) bool {
	return target == ErrTransport
}

// Package server defines the injected collaborators and utility helpers that
// are reused across client and hub logic.
package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/gospace/internal/identity"
	"github.com/Tyrowin/gospace/internal/moderation"
	"github.com/Tyrowin/gospace/internal/room"
	"github.com/Tyrowin/gospace/internal/storage"
)

// SessionTracker is told when a user leaves so it can drop them from any
// proximity session. *proximity.Coordinator satisfies it.
type SessionTracker interface {
	Leave(spaceID, userID string)
}

// Services bundles the collaborators every connection works with.
type Services struct {
	Registry  *room.Registry
	Proximity SessionTracker
	Verifier  identity.Verifier
	Spaces    storage.SpaceStore
	Chat      storage.ChatLog
	Filter    *moderation.Filter
}

func (s *Services) validate() error {
	switch {
	case s == nil:
		return errors.New("services are required")
	case s.Registry == nil:
		return errors.New("room registry is required")
	case s.Verifier == nil:
		return errors.New("token verifier is required")
	case s.Spaces == nil:
		return errors.New("space store is required")
	case s.Chat == nil:
		return errors.New("chat log is required")
	}
	return nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

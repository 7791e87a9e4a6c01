// Package storage defines persistence contracts for spaces, bans and the
// chat log.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Space is one persisted grid.
type Space struct {
	ID        string
	Name      string
	Width     int
	Height    int
	Banned    map[string]struct{}
	CreatedAt time.Time
}

// IsBanned reports whether userID may not join the space.
func (s Space) IsBanned(userID string) bool {
	_, ok := s.Banned[userID]
	return ok
}

// ChatMessage is one appended global chat line.
type ChatMessage struct {
	SpaceID string
	UserID  string
	Message string
	SentAt  time.Time
}

// SpaceStore reads spaces and records bans.
type SpaceStore interface {
	FindSpace(ctx context.Context, spaceID string) (Space, error)
	AppendBanned(ctx context.Context, spaceID, userID string) error
}

// ChatLog appends chat messages.
type ChatLog interface {
	AppendChat(ctx context.Context, msg ChatMessage) error
}

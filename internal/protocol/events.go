package protocol

import "encoding/json"

// Point is a grid coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UserPosition places one user on the grid.
type UserPosition struct {
	UserID string `json:"userId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// CallPair is an active direct call between two users.
type CallPair struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
}

// SpaceJoined is the snapshot sent to a connection after a successful join.
type SpaceJoined struct {
	UserID string         `json:"userId"`
	Spawn  Point          `json:"spawn"`
	Users  []UserPosition `json:"users"`
	Calls  []CallPair     `json:"calls"`
}

// ChatMessage is a delivered chat line.
type ChatMessage struct {
	UserID   string `json:"userId"`
	Message  string `json:"message"`
	IsGlobal bool   `json:"isGlobal"`
}

type ChatWarning struct {
	Message        string `json:"message"`
	ViolationCount int    `json:"violationCount"`
}

type Kicked struct {
	Reason string `json:"reason"`
}

type UserKicked struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type JoinRejected struct {
	Reason string `json:"reason"`
}

// VideoCallIncoming relays a direct call offer to its target.
type VideoCallIncoming struct {
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer,omitempty"`
}

// SignalRelay is the outbound form of every other call-signaling message.
type SignalRelay struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ProximityCall is sent for start_call and join_call.
type ProximityCall struct {
	SessionID     uint64 `json:"sessionId"`
	MediaEndpoint string `json:"mediaEndpoint"`
}

// ProximityLeave is sent for leave_call.
type ProximityLeave struct {
	SessionID uint64 `json:"sessionId"`
}

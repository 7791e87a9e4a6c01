// Package protocol defines the JSON wire format exchanged with space clients.
//
// Every frame is an Envelope carrying a type tag and a payload object. Inbound
// frames decode into one concrete Inbound value per type; outbound frames are
// built from the payload structs below and encoded with Marshal.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeJoin              = "join"
	TypeMove              = "move"
	TypeChatMessage       = "chat-message"
	TypeCallUser          = "call-user"
	TypeCallAccepted      = "call-accepted"
	TypeCallEnd           = "call-end"
	TypeICECandidate      = "ice-candidate"
	TypeNegotiationOffer  = "negotiation-offer"
	TypeNegotiationAnswer = "negotiation-answer"
)

// Outbound message types. Relay types reuse the inbound names where the
// client expects the same tag on both ends.
const (
	TypeSpaceJoined       = "space-joined"
	TypeUserJoined        = "user-joined"
	TypeMovement          = "movement"
	TypeMovementRejected  = "movement-rejected"
	TypeChatWarning       = "chat-warning"
	TypeKicked            = "kicked"
	TypeUserKicked        = "user-kicked"
	TypeUserLeft          = "user-left"
	TypeJoinRejected      = "join-rejected"
	TypeCallStarted       = "call-started"
	TypeCallEnded         = "call-ended"
	TypeVideoCallIncoming = "video-call-incoming"
	TypeStartCall         = "start_call"
	TypeJoinCall          = "join_call"
	TypeLeaveCall         = "leave_call"
)

// InboundTypes lists every inbound type Decode understands.
var InboundTypes = []string{
	TypeJoin,
	TypeMove,
	TypeChatMessage,
	TypeCallUser,
	TypeCallAccepted,
	TypeCallEnd,
	TypeICECandidate,
	TypeNegotiationOffer,
	TypeNegotiationAnswer,
}

var (
	// ErrMalformed indicates a frame that is not a valid envelope or whose
	// payload does not match its type.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType indicates an envelope with an unsupported type tag.
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the outer frame of every message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is implemented by every decoded client message.
type Inbound interface {
	Kind() string
}

// Relay is implemented by call-signaling messages addressed to one peer.
type Relay interface {
	Inbound
	Target() string
}

// Join asks to enter a space.
type Join struct {
	Token   string `json:"token"`
	SpaceID string `json:"spaceId"`
}

// Move requests a new grid position. A nil coordinate means the client sent
// something unusable; it is rejected like any other invalid move.
type Move struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// Chat is a global or private chat message.
type Chat struct {
	Message   string `json:"message"`
	IsGlobal  bool   `json:"isGlobal"`
	Recipient string `json:"recipient,omitempty"`
}

// CallUser offers a direct call to another user.
type CallUser struct {
	UserToCall string          `json:"userToCall"`
	Offer      json.RawMessage `json:"offer,omitempty"`
}

// CallAccepted answers a direct call offer.
type CallAccepted struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// CallEnd hangs up a direct call.
type CallEnd struct {
	To string `json:"to"`
}

// ICECandidate carries one ICE candidate for a direct call.
type ICECandidate struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// NegotiationOffer renegotiates an established direct call.
type NegotiationOffer struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer,omitempty"`
}

// NegotiationAnswer answers a renegotiation offer.
type NegotiationAnswer struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

func (Join) Kind() string              { return TypeJoin }
func (Move) Kind() string              { return TypeMove }
func (Chat) Kind() string              { return TypeChatMessage }
func (CallUser) Kind() string          { return TypeCallUser }
func (CallAccepted) Kind() string      { return TypeCallAccepted }
func (CallEnd) Kind() string           { return TypeCallEnd }
func (ICECandidate) Kind() string      { return TypeICECandidate }
func (NegotiationOffer) Kind() string  { return TypeNegotiationOffer }
func (NegotiationAnswer) Kind() string { return TypeNegotiationAnswer }

func (m CallUser) Target() string          { return m.UserToCall }
func (m CallAccepted) Target() string      { return m.To }
func (m CallEnd) Target() string           { return m.To }
func (m ICECandidate) Target() string      { return m.To }
func (m NegotiationOffer) Target() string  { return m.To }
func (m NegotiationAnswer) Target() string { return m.To }

// Decode parses one raw frame into its concrete Inbound type.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeJoin:
		return decodePayload[Join](env)
	case TypeMove:
		msg, err := decodePayload[Move](env)
		if err != nil {
			// Unusable coordinates still get an authoritative resync.
			return Move{}, nil
		}
		return msg, nil
	case TypeChatMessage:
		return decodePayload[Chat](env)
	case TypeCallUser:
		return decodePayload[CallUser](env)
	case TypeCallAccepted:
		return decodePayload[CallAccepted](env)
	case TypeCallEnd:
		return decodePayload[CallEnd](env)
	case TypeICECandidate:
		return decodePayload[ICECandidate](env)
	case TypeNegotiationOffer:
		return decodePayload[NegotiationOffer](env)
	case TypeNegotiationAnswer:
		return decodePayload[NegotiationAnswer](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodePayload[T Inbound](env Envelope) (T, error) {
	var msg T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return msg, nil
	}
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

// Marshal encodes an outbound frame.
func Marshal(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: data})
}

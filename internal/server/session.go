package server

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tyrowin/gospace/internal/moderation"
	"github.com/Tyrowin/gospace/internal/protocol"
	"github.com/Tyrowin/gospace/internal/room"
	"github.com/Tyrowin/gospace/internal/storage"
	"github.com/Tyrowin/gospace/internal/telemetry"
)

const (
	spawnOffset = 5

	reasonUnauthenticated = "Authentication failed"
	reasonSpaceNotFound   = "Space not found"
	reasonSpaceLookup     = "Space is unavailable"
	reasonBanned          = "You are banned from this space"
	reasonLanguage        = "Repeated use of inappropriate language"
	warningLanguage       = "Your message contained inappropriate language"
)

var errUnhandled = errors.New("unhandled message type")

// processMessage decodes one inbound frame and routes it. A panic while
// handling a frame is logged and confined to this connection.
func (c *Client) processMessage(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.sessionLog.Error().Interface("panic", r).Msg("recovered while handling message")
		}
	}()

	if c.terminated {
		return
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		c.sessionLog.Debug().Err(err).Msg("ignoring inbound message")
		return
	}

	if err := c.dispatch(msg); err != nil {
		c.sessionLog.Debug().Err(err).Msg("ignoring inbound message")
	}
}

func (c *Client) dispatch(msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.Join:
		c.handleJoin(m)
	case protocol.Move:
		c.handleMove(m)
	case protocol.Chat:
		c.handleChat(m)
	case protocol.CallUser:
		c.relay(m, protocol.TypeVideoCallIncoming, protocol.VideoCallIncoming{From: c.userID, Offer: m.Offer})
	case protocol.CallAccepted:
		if c.relay(m, protocol.TypeCallAccepted, protocol.SignalRelay{From: c.userID, Answer: m.Answer}) {
			c.svc.Registry.StartCall(c.spaceID, c.userID, m.To)
		}
	case protocol.CallEnd:
		c.relay(m, protocol.TypeCallEnd, protocol.SignalRelay{From: c.userID})
		if c.joined {
			c.svc.Registry.EndCall(c.spaceID, c.userID, m.To)
		}
	case protocol.ICECandidate:
		c.relay(m, protocol.TypeICECandidate, protocol.SignalRelay{From: c.userID, Candidate: m.Candidate})
	case protocol.NegotiationOffer:
		c.relay(m, protocol.TypeNegotiationOffer, protocol.SignalRelay{From: c.userID, Offer: m.Offer})
	case protocol.NegotiationAnswer:
		c.relay(m, protocol.TypeNegotiationAnswer, protocol.SignalRelay{From: c.userID, Answer: m.Answer})
	default:
		return fmt.Errorf("%w: %s", errUnhandled, msg.Kind())
	}
	return nil
}

func (c *Client) handleJoin(msg protocol.Join) {
	if c.joined {
		c.sessionLog.Debug().Msg("ignoring join on joined connection")
		return
	}

	ctx, span := telemetry.Tracer().Start(c.ctx, "session.join",
		trace.WithAttributes(attribute.String("space.id", msg.SpaceID)))
	defer span.End()

	userID, err := c.svc.Verifier.Verify(ctx, msg.Token)
	if err != nil {
		span.SetStatus(codes.Error, "verify token")
		span.RecordError(err)
		c.sessionLog.Info().Err(err).Msg("join rejected: token")
		c.rejectJoin(reasonUnauthenticated)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	space, err := c.svc.Spaces.FindSpace(ctx, msg.SpaceID)
	if err != nil {
		span.SetStatus(codes.Error, "find space")
		span.RecordError(err)
		reason := reasonSpaceLookup
		if errors.Is(err, storage.ErrNotFound) {
			reason = reasonSpaceNotFound
		} else {
			c.sessionLog.Error().Err(err).Str("space", msg.SpaceID).Msg("space lookup failed")
		}
		c.rejectJoin(reason)
		return
	}

	if space.IsBanned(userID) {
		span.SetStatus(codes.Error, "banned")
		c.sessionLog.Info().Str("user", userID).Str("space", space.ID).Msg("join rejected: banned")
		c.rejectJoin(reasonBanned)
		return
	}

	c.userID = userID
	c.spaceID = space.ID
	c.joined = true
	c.sessionLog = c.sessionLog.With().Str("user", userID).Str("space", space.ID).Logger()
	c.active.Store(true)

	c.svc.Registry.AddUser(space.ID, c, c.admit)
	x, y := c.Position()
	c.sessionLog.Info().Int("x", x).Int("y", y).Msg("joined space")
}

// admit runs under the room lock, so the snapshot and the user-joined fan-out
// are ordered against every other membership change in the room.
func (c *Client) admit(occupancy int, peers []room.Member, calls []protocol.CallPair) {
	spawn := spawnOffset + occupancy
	c.setPosition(spawn, spawn)

	users := make([]protocol.UserPosition, 0, len(peers))
	for _, p := range peers {
		if !p.Active() {
			continue
		}
		x, y := p.Position()
		users = append(users, protocol.UserPosition{UserID: p.UserID(), X: x, Y: y})
	}

	c.sendEvent(protocol.TypeSpaceJoined, protocol.SpaceJoined{
		UserID: c.userID,
		Spawn:  protocol.Point{X: spawn, Y: spawn},
		Users:  users,
		Calls:  calls,
	})

	joined, err := protocol.Marshal(protocol.TypeUserJoined, protocol.UserPosition{UserID: c.userID, X: spawn, Y: spawn})
	if err != nil {
		c.sessionLog.Error().Err(err).Msg("encode user-joined")
		return
	}
	for _, p := range peers {
		if !p.Send(joined) {
			c.sessionLog.Warn().Str("peer", p.ID()).Msg("send buffer full; closing connection")
			p.Close()
		}
	}
}

// rejectJoin reports the failure and closes the connection once the rejection
// has been flushed.
func (c *Client) rejectJoin(reason string) {
	c.terminated = true
	c.sendEvent(protocol.TypeJoinRejected, protocol.JoinRejected{Reason: reason})
	c.finishSend()
}

func (c *Client) handleMove(msg protocol.Move) {
	if !c.joined {
		return
	}

	x, y := c.Position()
	if msg.X == nil || msg.Y == nil || !isStep(*msg.X-x, *msg.Y-y) {
		c.sendEvent(protocol.TypeMovementRejected, protocol.Point{X: x, Y: y})
		return
	}

	nx, ny := *msg.X, *msg.Y
	c.setPosition(nx, ny)

	moved := protocol.UserPosition{UserID: c.userID, X: nx, Y: ny}
	c.broadcast(protocol.TypeMovement, moved)
	c.sendEvent(protocol.TypeMovement, moved)
}

// isStep reports whether (dx, dy) is exactly one cell along one axis.
func isStep(dx, dy int) bool {
	return (abs(dx) == 1 && dy == 0) || (dx == 0 && abs(dy) == 1)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (c *Client) handleChat(msg protocol.Chat) {
	if !c.joined {
		return
	}

	if !msg.IsGlobal {
		if msg.Recipient == "" {
			return
		}
		c.sendToUser(msg.Recipient, protocol.TypeChatMessage, protocol.ChatMessage{
			UserID:  c.userID,
			Message: msg.Message,
		})
		return
	}

	entry := storage.ChatMessage{
		SpaceID: c.spaceID,
		UserID:  c.userID,
		Message: msg.Message,
		SentAt:  time.Now().UTC(),
	}
	if err := c.svc.Chat.AppendChat(c.ctx, entry); err != nil {
		c.sessionLog.Error().Err(err).Msg("append chat message")
	}

	if c.svc.Filter.Flagged(msg.Message) {
		c.violations++
		c.sessionLog.Info().Int("violations", c.violations).Msg("flagged chat message")
		if c.violations >= moderation.KickThreshold {
			c.kick(reasonLanguage)
			return
		}
		c.sendEvent(protocol.TypeChatWarning, protocol.ChatWarning{
			Message:        warningLanguage,
			ViolationCount: c.violations,
		})
		return
	}

	c.broadcastAll(protocol.TypeChatMessage, protocol.ChatMessage{
		UserID:   c.userID,
		Message:  msg.Message,
		IsGlobal: true,
	})
}

// relay forwards a signaling message to its target in the same space and
// reports whether the target was found.
func (c *Client) relay(msg protocol.Relay, typ string, payload any) bool {
	if !c.joined {
		return false
	}
	target := msg.Target()
	if target == "" || target == c.userID {
		return false
	}
	return c.sendToUser(target, typ, payload)
}

// kick removes the user for moderation and bans them from the space.
func (c *Client) kick(reason string) {
	ctx, span := telemetry.Tracer().Start(c.ctx, "session.kick",
		trace.WithAttributes(
			attribute.String("space.id", c.spaceID),
			attribute.String("user.id", c.userID),
		))
	defer span.End()

	c.terminated = true
	c.sessionLog.Warn().Str("reason", reason).Msg("kicking user")

	c.sendEvent(protocol.TypeKicked, protocol.Kicked{Reason: reason})
	c.broadcast(protocol.TypeUserKicked, protocol.UserKicked{UserID: c.userID, Reason: reason})

	if err := c.svc.Spaces.AppendBanned(ctx, c.spaceID, c.userID); err != nil {
		span.RecordError(err)
		c.sessionLog.Error().Err(err).Msg("record ban")
	}

	c.teardown(false)
	c.finishSend()
}

// destroy releases everything the session holds. It runs when the transport
// closes and is safe to call more than once.
func (c *Client) destroy() {
	c.teardown(true)
}

// teardown ends the user's direct call, leaves any proximity session and
// removes the connection from its room, in that order.
func (c *Client) teardown(announceLeave bool) {
	if c.tornDown {
		return
	}
	c.tornDown = true
	defer c.cancel()

	if !c.joined {
		return
	}
	c.active.Store(false)

	if peer, ok := c.svc.Registry.CallPeer(c.spaceID, c.userID); ok {
		c.sendToUser(peer, protocol.TypeCallEnd, protocol.SignalRelay{From: c.userID})
		c.svc.Registry.EndCall(c.spaceID, c.userID, peer)
	}

	if c.svc.Proximity != nil {
		c.svc.Proximity.Leave(c.spaceID, c.userID)
	}

	if announceLeave {
		c.broadcast(protocol.TypeUserLeft, protocol.UserLeft{UserID: c.userID})
	}

	c.svc.Registry.RemoveUser(c.spaceID, c.id)
	c.sessionLog.Info().Bool("kicked", !announceLeave).Msg("left space")
}

// sendEvent queues an event for this connection only.
func (c *Client) sendEvent(typ string, payload any) {
	msg, err := protocol.Marshal(typ, payload)
	if err != nil {
		c.sessionLog.Error().Err(err).Str("type", typ).Msg("encode event")
		return
	}
	if !c.Send(msg) {
		c.sessionLog.Warn().Str("type", typ).Msg("send buffer full; closing connection")
		c.Close()
	}
}

// broadcast delivers an event to every other member of the room.
func (c *Client) broadcast(typ string, payload any) {
	msg, err := protocol.Marshal(typ, payload)
	if err != nil {
		c.sessionLog.Error().Err(err).Str("type", typ).Msg("encode event")
		return
	}
	c.svc.Registry.Broadcast(c.spaceID, msg, c.id)
}

// broadcastAll delivers an event to every member of the room, sender included.
func (c *Client) broadcastAll(typ string, payload any) {
	msg, err := protocol.Marshal(typ, payload)
	if err != nil {
		c.sessionLog.Error().Err(err).Str("type", typ).Msg("encode event")
		return
	}
	c.svc.Registry.BroadcastToAll(c.spaceID, msg)
}

func (c *Client) sendToUser(userID, typ string, payload any) bool {
	msg, err := protocol.Marshal(typ, payload)
	if err != nil {
		c.sessionLog.Error().Err(err).Str("type", typ).Msg("encode event")
		return false
	}
	return c.svc.Registry.SendToUser(c.spaceID, userID, msg)
}

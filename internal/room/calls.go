package room

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/gospace/internal/protocol"
)

// StartCall records a direct call between userA and userB and announces it
// with call-started to the whole room. A user holds at most one direct call,
// so any existing pairing of either user is ended (and announced) first.
func (r *Registry) StartCall(spaceID, userA, userB string) {
	if userA == "" || userB == "" || userA == userB {
		return
	}
	rm := r.get(spaceID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	var ended []protocol.CallPair
	for _, u := range []string{userA, userB} {
		peer, ok := rm.calls[u]
		if !ok || peer == userA || peer == userB {
			continue
		}
		delete(rm.calls, u)
		if rm.calls[peer] == u {
			delete(rm.calls, peer)
		}
		ended = append(ended, protocol.CallPair{User1: u, User2: peer})
	}
	rm.calls[userA] = userB
	rm.calls[userB] = userA
	rm.mu.Unlock()

	for _, pair := range ended {
		r.announce(spaceID, protocol.TypeCallEnded, pair)
	}
	log.Info().Str("space", spaceID).Str("user1", userA).Str("user2", userB).Msg("direct call started")
	r.announce(spaceID, protocol.TypeCallStarted, protocol.CallPair{User1: userA, User2: userB})
}

// EndCall removes both directions of the userA/userB pairing and announces
// call-ended. It reports whether a pairing existed; ending an absent pairing
// is a silent no-op.
func (r *Registry) EndCall(spaceID, userA, userB string) bool {
	rm := r.get(spaceID)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	removed := false
	if peer, ok := rm.calls[userA]; ok && peer == userB {
		delete(rm.calls, userA)
		removed = true
	}
	if peer, ok := rm.calls[userB]; ok && peer == userA {
		delete(rm.calls, userB)
		removed = true
	}
	rm.mu.Unlock()

	if !removed {
		return false
	}
	log.Info().Str("space", spaceID).Str("user1", userA).Str("user2", userB).Msg("direct call ended")
	r.announce(spaceID, protocol.TypeCallEnded, protocol.CallPair{User1: userA, User2: userB})
	return true
}

// CallPeer returns the user that userID is in a direct call with.
func (r *Registry) CallPeer(spaceID, userID string) (string, bool) {
	rm := r.get(spaceID)
	if rm == nil {
		return "", false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	peer, ok := rm.calls[userID]
	return peer, ok
}

// ActiveCalls lists each direct call in the room once.
func (r *Registry) ActiveCalls(spaceID string) []protocol.CallPair {
	rm := r.get(spaceID)
	if rm == nil {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.callsLocked()
}

func (rm *room) callsLocked() []protocol.CallPair {
	pairs := make([]protocol.CallPair, 0, len(rm.calls)/2)
	for a, b := range rm.calls {
		if a < b {
			pairs = append(pairs, protocol.CallPair{User1: a, User2: b})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].User1 < pairs[j].User1
	})
	return pairs
}

func (r *Registry) announce(spaceID, typ string, pair protocol.CallPair) {
	msg, err := protocol.Marshal(typ, pair)
	if err != nil {
		log.Error().Err(err).Str("type", typ).Msg("encode call announcement")
		return
	}
	r.BroadcastToAll(spaceID, msg)
}

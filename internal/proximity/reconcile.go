// Package proximity groups users standing near each other into shared call
// sessions.
//
// Reconcile is a pure function: given the positions in one room and the
// previous session assignments it computes the next assignments and the
// notifications to send. The Coordinator runs it per room on a timer and
// delivers the effects.
package proximity

import "sort"

// SessionID identifies a proximity session. Ids are allocated from a
// process-local counter and have no meaning across restarts.
type SessionID uint64

// Occupant is one user's position at snapshot time.
type Occupant struct {
	UserID string
	X      int
	Y      int
}

// Assignment maps user ids to their current session.
type Assignment map[string]SessionID

// EffectKind says which notification an Effect produces.
type EffectKind int

const (
	// EffectStart: the user is a founding member of a new session.
	EffectStart EffectKind = iota
	// EffectJoin: the user was added to, or merged into, an existing session.
	EffectJoin
	// EffectLeave: the user is no longer near anyone in their session.
	EffectLeave
)

func (k EffectKind) String() string {
	switch k {
	case EffectStart:
		return "start"
	case EffectJoin:
		return "join"
	case EffectLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// Effect is one membership change to notify.
type Effect struct {
	Kind      EffectKind
	UserID    string
	SessionID SessionID
}

// Reconcile computes the session partition for one room.
//
// Two users are adjacent when their Euclidean distance is at most threshold.
// Every connected component of two or more users becomes one session. A
// component keeps the prior session id held by most of its members (ties go
// to the lower id); an id already taken by another component is skipped, and
// a component with no usable id gets a fresh one from alloc. Users of the
// snapshot that belonged to a session but are now isolated are evicted.
// Users absent from the snapshot are dropped without notification.
func Reconcile(snapshot []Occupant, previous Assignment, threshold float64, alloc func() SessionID) (Assignment, []Effect) {
	occupants := uniqueSorted(snapshot)
	n := len(occupants)

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	limit := threshold * threshold
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := float64(occupants[i].X - occupants[j].X)
			dy := float64(occupants[i].Y - occupants[j].Y)
			if dx*dx+dy*dy > limit {
				continue
			}
			ri, rj := find(i), find(j)
			if ri != rj {
				if ri < rj {
					parent[rj] = ri
				} else {
					parent[ri] = rj
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}
	components := make([][]int, 0, len(groups))
	for _, members := range groups {
		if len(members) >= 2 {
			components = append(components, members)
		}
	}
	// Larger components claim prior ids first; ties by first user id.
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return occupants[components[i][0]].UserID < occupants[components[j][0]].UserID
	})

	next := make(Assignment)
	var effects []Effect
	claimed := make(map[SessionID]bool)

	for _, members := range components {
		id, fresh := chooseSession(occupants, members, previous, claimed, alloc)
		claimed[id] = true

		for _, idx := range members {
			user := occupants[idx].UserID
			next[user] = id
			prior, had := previous[user]
			switch {
			case fresh:
				effects = append(effects, Effect{Kind: EffectStart, UserID: user, SessionID: id})
			case !had || prior != id:
				effects = append(effects, Effect{Kind: EffectJoin, UserID: user, SessionID: id})
			}
		}
	}

	for _, o := range occupants {
		prior, had := previous[o.UserID]
		if !had {
			continue
		}
		if _, grouped := next[o.UserID]; grouped {
			continue
		}
		effects = append(effects, Effect{Kind: EffectLeave, UserID: o.UserID, SessionID: prior})
	}

	return next, effects
}

func chooseSession(occupants []Occupant, members []int, previous Assignment, claimed map[SessionID]bool, alloc func() SessionID) (SessionID, bool) {
	counts := make(map[SessionID]int)
	for _, idx := range members {
		if id, ok := previous[occupants[idx].UserID]; ok && !claimed[id] {
			counts[id]++
		}
	}

	best, bestCount := SessionID(0), 0
	for id, count := range counts {
		if count > bestCount || (count == bestCount && id < best) {
			best, bestCount = id, count
		}
	}
	if bestCount == 0 {
		return alloc(), true
	}
	return best, false
}

func uniqueSorted(snapshot []Occupant) []Occupant {
	seen := make(map[string]bool, len(snapshot))
	out := make([]Occupant, 0, len(snapshot))
	for _, o := range snapshot {
		if o.UserID == "" || seen[o.UserID] {
			continue
		}
		seen[o.UserID] = true
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

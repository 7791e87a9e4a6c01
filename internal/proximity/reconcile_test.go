package proximity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(start SessionID) func() SessionID {
	next := start
	return func() SessionID {
		next++
		return next
	}
}

func TestReconcile_NewPairStartsSession(t *testing.T) {
	snap := []Occupant{{UserID: "alice", X: 5, Y: 5}, {UserID: "bob", X: 6, Y: 6}}

	next, effects := Reconcile(snap, nil, 2, counter(0))

	assert.Equal(t, Assignment{"alice": 1, "bob": 1}, next)
	assert.Equal(t, []Effect{
		{Kind: EffectStart, UserID: "alice", SessionID: 1},
		{Kind: EffectStart, UserID: "bob", SessionID: 1},
	}, effects)
}

func TestReconcile_DistanceThreshold(t *testing.T) {
	tests := []struct {
		name     string
		b        Occupant
		adjacent bool
	}{
		{name: "two along an axis", b: Occupant{UserID: "bob", X: 2, Y: 0}, adjacent: true},
		{name: "diagonal one", b: Occupant{UserID: "bob", X: 1, Y: 1}, adjacent: true},
		{name: "knight move is sqrt5", b: Occupant{UserID: "bob", X: 2, Y: 1}, adjacent: false},
		{name: "three along an axis", b: Occupant{UserID: "bob", X: 0, Y: 3}, adjacent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := []Occupant{{UserID: "alice"}, tt.b}
			next, _ := Reconcile(snap, nil, 2, counter(0))
			assert.Equal(t, tt.adjacent, len(next) == 2)
		})
	}
}

func TestReconcile_NewcomerJoinsExistingSession(t *testing.T) {
	snap := []Occupant{
		{UserID: "alice", X: 0, Y: 0},
		{UserID: "bob", X: 1, Y: 0},
		{UserID: "carol", X: 2, Y: 0},
	}
	prev := Assignment{"alice": 7, "bob": 7}

	next, effects := Reconcile(snap, prev, 2, counter(7))

	assert.Equal(t, Assignment{"alice": 7, "bob": 7, "carol": 7}, next)
	assert.Equal(t, []Effect{{Kind: EffectJoin, UserID: "carol", SessionID: 7}}, effects)
}

func TestReconcile_MergeSmallerIntoLarger(t *testing.T) {
	snap := []Occupant{
		{UserID: "a", X: 0, Y: 0},
		{UserID: "b", X: 1, Y: 0},
		{UserID: "c", X: 2, Y: 0},
		{UserID: "d", X: 3, Y: 0},
		{UserID: "e", X: 4, Y: 0},
	}
	prev := Assignment{"a": 2, "b": 2, "c": 2, "d": 1, "e": 1}

	next, effects := Reconcile(snap, prev, 2, counter(2))

	for _, u := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, SessionID(2), next[u], "user %s", u)
	}
	assert.ElementsMatch(t, []Effect{
		{Kind: EffectJoin, UserID: "d", SessionID: 2},
		{Kind: EffectJoin, UserID: "e", SessionID: 2},
	}, effects)
}

func TestReconcile_MergeTieGoesToLowerID(t *testing.T) {
	snap := []Occupant{
		{UserID: "a", X: 0, Y: 0},
		{UserID: "b", X: 1, Y: 0},
		{UserID: "c", X: 2, Y: 0},
		{UserID: "d", X: 3, Y: 0},
	}
	prev := Assignment{"a": 9, "b": 9, "c": 4, "d": 4}

	next, effects := Reconcile(snap, prev, 2, counter(9))

	assert.Equal(t, Assignment{"a": 4, "b": 4, "c": 4, "d": 4}, next)
	assert.ElementsMatch(t, []Effect{
		{Kind: EffectJoin, UserID: "a", SessionID: 4},
		{Kind: EffectJoin, UserID: "b", SessionID: 4},
	}, effects)
}

func TestReconcile_IsolatedUserIsEvicted(t *testing.T) {
	snap := []Occupant{
		{UserID: "alice", X: 0, Y: 0},
		{UserID: "bob", X: 10, Y: 10},
	}
	prev := Assignment{"alice": 3, "bob": 3}

	next, effects := Reconcile(snap, prev, 2, counter(3))

	assert.Empty(t, next)
	assert.Equal(t, []Effect{
		{Kind: EffectLeave, UserID: "alice", SessionID: 3},
		{Kind: EffectLeave, UserID: "bob", SessionID: 3},
	}, effects)
}

func TestReconcile_SplitKeepsIDForOneSide(t *testing.T) {
	snap := []Occupant{
		{UserID: "a", X: 0, Y: 0},
		{UserID: "b", X: 1, Y: 0},
		{UserID: "c", X: 20, Y: 0},
		{UserID: "d", X: 21, Y: 0},
	}
	prev := Assignment{"a": 5, "b": 5, "c": 5, "d": 5}

	next, effects := Reconcile(snap, prev, 2, counter(5))

	assert.Equal(t, SessionID(5), next["a"])
	assert.Equal(t, SessionID(5), next["b"])
	assert.Equal(t, SessionID(6), next["c"])
	assert.Equal(t, SessionID(6), next["d"])
	assert.Equal(t, []Effect{
		{Kind: EffectStart, UserID: "c", SessionID: 6},
		{Kind: EffectStart, UserID: "d", SessionID: 6},
	}, effects)
}

func TestReconcile_DepartedUsersDroppedQuietly(t *testing.T) {
	snap := []Occupant{{UserID: "alice"}, {UserID: "bob", X: 1}}
	prev := Assignment{"alice": 1, "bob": 1, "carol": 1}

	next, effects := Reconcile(snap, prev, 2, counter(1))

	assert.Equal(t, Assignment{"alice": 1, "bob": 1}, next)
	assert.Empty(t, effects)
}

func TestReconcile_StableStateEmitsNothing(t *testing.T) {
	snap := []Occupant{{UserID: "alice"}, {UserID: "bob", X: 1}}
	next, _ := Reconcile(snap, nil, 2, counter(0))

	again, effects := Reconcile(snap, next, 2, counter(1))
	assert.Equal(t, next, again)
	assert.Empty(t, effects)
}

// Sessions must match the connected components of the adjacency graph: no
// user in two sessions and every adjacent pair sharing one.
func TestReconcile_PartitionsConnectedComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alloc := counter(0)
	var prev Assignment

	for round := 0; round < 200; round++ {
		snap := make([]Occupant, 0, 12)
		for i := 0; i < 12; i++ {
			snap = append(snap, Occupant{
				UserID: string(rune('a' + i)),
				X:      rng.Intn(10),
				Y:      rng.Intn(10),
			})
		}

		next, _ := Reconcile(snap, prev, 2, alloc)

		for i := range snap {
			for j := i + 1; j < len(snap); j++ {
				dx := snap[i].X - snap[j].X
				dy := snap[i].Y - snap[j].Y
				if dx*dx+dy*dy > 4 {
					continue
				}
				si, okI := next[snap[i].UserID]
				sj, okJ := next[snap[j].UserID]
				require.True(t, okI && okJ, "adjacent users must both have sessions")
				require.Equal(t, si, sj, "adjacent users must share a session")
			}
		}

		members := make(map[SessionID]int)
		for _, id := range next {
			members[id]++
		}
		for id, count := range members {
			require.GreaterOrEqual(t, count, 2, "session %d has a single member", id)
		}
		prev = next
	}
}

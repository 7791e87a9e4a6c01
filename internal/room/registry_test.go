package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gospace/internal/protocol"
)

type mockMember struct {
	id       string
	userID   string
	x, y     int
	inactive bool
	full     bool

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func newMock(id, userID string) *mockMember {
	return &mockMember{id: id, userID: userID}
}

func (m *mockMember) ID() string           { return m.id }
func (m *mockMember) UserID() string       { return m.userID }
func (m *mockMember) Position() (int, int) { return m.x, m.y }
func (m *mockMember) Active() bool         { return !m.inactive }

func (m *mockMember) Send(msg []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.received = append(m.received, msg)
	return true
}

func (m *mockMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockMember) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.received))
	for _, raw := range m.received {
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

func TestRegistry_AddUserReportsOccupancyAndPeers(t *testing.T) {
	r := NewRegistry()
	a := newMock("c1", "alice")
	b := newMock("c2", "bob")

	var gotOccupancy int
	var gotPeers []Member
	r.AddUser("space", a, func(occupancy int, peers []Member, _ []protocol.CallPair) {
		gotOccupancy = occupancy
		gotPeers = peers
	})
	assert.Equal(t, 0, gotOccupancy)
	assert.Empty(t, gotPeers)

	r.AddUser("space", b, func(occupancy int, peers []Member, _ []protocol.CallPair) {
		gotOccupancy = occupancy
		gotPeers = peers
	})
	assert.Equal(t, 1, gotOccupancy)
	require.Len(t, gotPeers, 1)
	assert.Equal(t, "alice", gotPeers[0].UserID())
	assert.Equal(t, 2, r.Occupancy("space"))
}

func TestRegistry_ConcurrentJoinsSeeDistinctOccupancy(t *testing.T) {
	r := NewRegistry()

	const n = 50
	seen := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := newMock(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
			r.AddUser("space", m, func(occupancy int, _ []Member, _ []protocol.CallPair) {
				seen <- occupancy
			})
		}(i)
	}
	wg.Wait()
	close(seen)

	unique := make(map[int]bool)
	for occ := range seen {
		assert.False(t, unique[occ], "occupancy %d observed twice", occ)
		unique[occ] = true
	}
	assert.Len(t, unique, n)
}

func TestRegistry_RemoveUserIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := newMock("c1", "alice")
	r.AddUser("space", a, nil)

	r.RemoveUser("space", "c1")
	r.RemoveUser("space", "c1")
	r.RemoveUser("missing", "c1")

	assert.Equal(t, 0, r.Occupancy("space"))
	assert.Empty(t, r.Spaces())
}

func TestRegistry_Broadcast(t *testing.T) {
	tests := []struct {
		name      string
		all       bool
		wantAlice int
		wantBob   int
		wantCarol int
	}{
		{name: "broadcast skips sender", all: false, wantAlice: 0, wantBob: 1, wantCarol: 0},
		{name: "broadcast to all includes sender", all: true, wantAlice: 1, wantBob: 1, wantCarol: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			a := newMock("c1", "alice")
			b := newMock("c2", "bob")
			c := newMock("c3", "carol")
			r.AddUser("space", a, nil)
			r.AddUser("space", b, nil)
			r.AddUser("other", c, nil)

			if tt.all {
				r.BroadcastToAll("space", []byte("hi"))
			} else {
				r.Broadcast("space", []byte("hi"), "c1")
			}

			assert.Len(t, a.received, tt.wantAlice)
			assert.Len(t, b.received, tt.wantBob)
			assert.Len(t, c.received, tt.wantCarol)
		})
	}
}

func TestRegistry_FullBufferClosesMember(t *testing.T) {
	r := NewRegistry()
	a := newMock("c1", "alice")
	b := newMock("c2", "bob")
	b.full = true
	r.AddUser("space", a, nil)
	r.AddUser("space", b, nil)

	r.Broadcast("space", []byte("hi"), "c1")

	assert.True(t, b.closed)
	assert.False(t, a.closed)
}

func TestRegistry_FindByUserIDSkipsInactive(t *testing.T) {
	r := NewRegistry()
	a := newMock("c1", "alice")
	a.inactive = true
	r.AddUser("space", a, nil)

	_, ok := r.FindByUserID("space", "alice")
	assert.False(t, ok)
	assert.False(t, r.SendToUser("space", "alice", []byte("x")))

	b := newMock("c2", "bob")
	r.AddUser("space", b, nil)
	found, ok := r.FindByUserID("space", "bob")
	require.True(t, ok)
	assert.Equal(t, "c2", found.ID())
}

func TestRegistry_SnapshotExcludesInactive(t *testing.T) {
	r := NewRegistry()
	a := newMock("c1", "alice")
	a.x, a.y = 5, 5
	b := newMock("c2", "bob")
	b.inactive = true
	r.AddUser("space", a, nil)
	r.AddUser("space", b, nil)

	snap := r.Snapshot("space")
	require.Len(t, snap, 1)
	assert.Equal(t, Position{ConnID: "c1", UserID: "alice", X: 5, Y: 5}, snap[0])
}

func TestRegistry_StartEndCallLeavesNoResidue(t *testing.T) {
	r := NewRegistry()
	a := newMock("c1", "alice")
	b := newMock("c2", "bob")
	r.AddUser("space", a, nil)
	r.AddUser("space", b, nil)

	r.StartCall("space", "alice", "bob")
	peer, ok := r.CallPeer("space", "alice")
	require.True(t, ok)
	assert.Equal(t, "bob", peer)
	assert.Equal(t, []protocol.CallPair{{User1: "alice", User2: "bob"}}, r.ActiveCalls("space"))

	assert.True(t, r.EndCall("space", "alice", "bob"))
	_, ok = r.CallPeer("space", "alice")
	assert.False(t, ok)
	_, ok = r.CallPeer("space", "bob")
	assert.False(t, ok)
	assert.Empty(t, r.ActiveCalls("space"))

	assert.False(t, r.EndCall("space", "alice", "bob"))
	assert.Equal(t, []string{protocol.TypeCallStarted, protocol.TypeCallEnded}, a.types())
	assert.Equal(t, []string{protocol.TypeCallStarted, protocol.TypeCallEnded}, b.types())
}

func TestRegistry_StartCallEndsPreviousPairing(t *testing.T) {
	r := NewRegistry()
	for i, u := range []string{"alice", "bob", "carol"} {
		r.AddUser("space", newMock(fmt.Sprintf("c%d", i), u), nil)
	}

	r.StartCall("space", "alice", "bob")
	r.StartCall("space", "carol", "bob")

	_, ok := r.CallPeer("space", "alice")
	assert.False(t, ok)
	peer, ok := r.CallPeer("space", "bob")
	require.True(t, ok)
	assert.Equal(t, "carol", peer)
	assert.Equal(t, []protocol.CallPair{{User1: "bob", User2: "carol"}}, r.ActiveCalls("space"))
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry()
	r.AddUser("s1", newMock("c1", "alice"), nil)
	r.AddUser("s1", newMock("c2", "bob"), nil)
	r.AddUser("s2", newMock("c3", "carol"), nil)

	rooms, members := r.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, members)
	assert.Equal(t, []string{"s1", "s2"}, r.Spaces())
}

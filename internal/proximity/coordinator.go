package proximity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/gospace/internal/protocol"
	"github.com/Tyrowin/gospace/internal/room"
)

const (
	// DefaultInterval is how often rooms are reconciled.
	DefaultInterval = time.Second
	// DefaultThreshold is the adjacency distance in grid units.
	DefaultThreshold = 2.0
)

// Directory is the view of live rooms the coordinator needs.
// *room.Registry satisfies it.
type Directory interface {
	Spaces() []string
	Snapshot(spaceID string) []room.Position
	SendToUser(spaceID, userID string, msg []byte) bool
}

// Config tunes a Coordinator.
type Config struct {
	Interval  time.Duration
	Threshold float64
	// MediaEndpoint is handed to clients so they can reach the media relay
	// for their session.
	MediaEndpoint string
}

// Coordinator keeps proximity sessions in step with user positions.
type Coordinator struct {
	dir Directory
	cfg Config

	mu          sync.Mutex
	nextID      SessionID
	assignments map[string]Assignment
}

// NewCoordinator creates a Coordinator over dir. Zero config values fall
// back to DefaultInterval and DefaultThreshold.
func NewCoordinator(dir Directory, cfg Config) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Coordinator{
		dir:         dir,
		cfg:         cfg,
		assignments: make(map[string]Assignment),
	}
}

// Run reconciles every room once per interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", c.cfg.Interval).Float64("threshold", c.cfg.Threshold).Msg("proximity coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("proximity coordinator stopped")
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick reconciles every room once.
func (c *Coordinator) Tick() {
	live := c.dir.Spaces()
	for _, spaceID := range live {
		c.TickSpace(spaceID)
	}
	c.forgetRooms(live)
}

// TickSpace reconciles one room, delivers the resulting notifications and
// returns them.
func (c *Coordinator) TickSpace(spaceID string) (effects []Effect) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("space", spaceID).Msg("recovered from panic in proximity tick")
			effects = nil
		}
	}()

	c.mu.Lock()
	positions := c.dir.Snapshot(spaceID)
	snapshot := make([]Occupant, 0, len(positions))
	for _, p := range positions {
		snapshot = append(snapshot, Occupant{UserID: p.UserID, X: p.X, Y: p.Y})
	}
	next, effects := Reconcile(snapshot, c.assignments[spaceID], c.cfg.Threshold, c.allocLocked)
	if len(next) == 0 {
		delete(c.assignments, spaceID)
	} else {
		c.assignments[spaceID] = next
	}
	c.mu.Unlock()

	for _, e := range effects {
		c.notify(spaceID, e)
	}
	return effects
}

// Leave removes userID from its session in spaceID. When only one member
// would remain, the session dissolves and that member is told to leave.
func (c *Coordinator) Leave(spaceID, userID string) {
	c.mu.Lock()
	assigned := c.assignments[spaceID]
	id, ok := assigned[userID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(assigned, userID)

	var remaining []string
	for user, sid := range assigned {
		if sid == id {
			remaining = append(remaining, user)
		}
	}
	var evicted []Effect
	if len(remaining) == 1 {
		delete(assigned, remaining[0])
		evicted = append(evicted, Effect{Kind: EffectLeave, UserID: remaining[0], SessionID: id})
	}
	if len(assigned) == 0 {
		delete(c.assignments, spaceID)
	}
	c.mu.Unlock()

	log.Debug().Str("space", spaceID).Str("user", userID).Uint64("session", uint64(id)).Msg("left proximity session")
	for _, e := range evicted {
		c.notify(spaceID, e)
	}
}

// SessionOf returns the session userID currently belongs to.
func (c *Coordinator) SessionOf(spaceID, userID string) (SessionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.assignments[spaceID][userID]
	return id, ok
}

func (c *Coordinator) allocLocked() SessionID {
	c.nextID++
	return c.nextID
}

func (c *Coordinator) forgetRooms(live []string) {
	keep := make(map[string]bool, len(live))
	for _, id := range live {
		keep[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for spaceID := range c.assignments {
		if !keep[spaceID] {
			delete(c.assignments, spaceID)
		}
	}
}

func (c *Coordinator) notify(spaceID string, e Effect) {
	var (
		msg []byte
		err error
	)
	switch e.Kind {
	case EffectStart:
		msg, err = protocol.Marshal(protocol.TypeStartCall, protocol.ProximityCall{SessionID: uint64(e.SessionID), MediaEndpoint: c.cfg.MediaEndpoint})
	case EffectJoin:
		msg, err = protocol.Marshal(protocol.TypeJoinCall, protocol.ProximityCall{SessionID: uint64(e.SessionID), MediaEndpoint: c.cfg.MediaEndpoint})
	case EffectLeave:
		msg, err = protocol.Marshal(protocol.TypeLeaveCall, protocol.ProximityLeave{SessionID: uint64(e.SessionID)})
	}
	if err != nil {
		log.Error().Err(err).Str("effect", e.Kind.String()).Msg("encode proximity notification")
		return
	}
	if msg == nil {
		return
	}

	log.Debug().Str("space", spaceID).Str("user", e.UserID).Str("effect", e.Kind.String()).
		Uint64("session", uint64(e.SessionID)).Msg("proximity session change")
	c.dir.SendToUser(spaceID, e.UserID, msg)
}

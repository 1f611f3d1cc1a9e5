package player

import (
	"context"
	"testing"
	"time"

	"netsync/internal/motion"
	"netsync/internal/palette"
	"netsync/internal/replication"
	"netsync/internal/session"
	"netsync/internal/transport"
	"netsync/logging"
	"netsync/logging/sinks"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// staticSource holds the owner at a fixed pose.
type staticSource struct {
	position motion.Vec2
	yaw      float64
}

func (s *staticSource) Sample(float64) (motion.Vec2, float64) { return s.position, s.yaw }

type effectLog struct {
	fires  []motion.Vec3
	colors []palette.Color
}

type participantState struct {
	session  *session.Session
	endpoint *transport.LoopbackEndpoint
	effects  map[replication.EntityID]*effectLog
	sources  map[replication.EntityID]*staticSource
	poses    map[replication.EntityID]motion.Vec2
}

type testWorld struct {
	t        *testing.T
	clock    *manualClock
	network  *transport.Network
	config   Config
	server   *participantState
	clients  map[replication.ParticipantID]*participantState
	order    []replication.ParticipantID
	events   *sinks.MemorySink
	joinSeen int
}

const tickRate = 60

func newTestWorld(t *testing.T, authority replication.Kind, cfg Config) *testWorld {
	t.Helper()
	clock := &manualClock{now: time.Unix(100, 0)}
	w := &testWorld{
		t:       t,
		clock:   clock,
		network: transport.NewNetwork(clock, transport.Conditions{}, 1, nil),
		config:  cfg,
		clients: make(map[replication.ParticipantID]*participantState),
		events:  sinks.NewMemorySink(),
	}
	w.server = w.attach(replication.Participant{ID: "server", Kind: authority})
	w.server.session.OnPeerJoined(func(p replication.Participant) {
		w.joinSeen++
		if _, err := w.server.session.Spawn(Kind, p.ID); err != nil {
			t.Fatalf("spawn player for %s: %v", p.ID, err)
		}
	})
	return w
}

func (w *testWorld) attach(p replication.Participant) *participantState {
	w.t.Helper()
	ep, err := w.network.Join(p)
	if err != nil {
		w.t.Fatalf("join %s: %v", p.ID, err)
	}
	state := &participantState{
		endpoint: ep,
		effects:  make(map[replication.EntityID]*effectLog),
		sources:  make(map[replication.EntityID]*staticSource),
		poses:    make(map[replication.EntityID]motion.Vec2),
	}
	publisher := logging.PublisherFunc(func(ctx context.Context, event logging.Event) {
		w.events.Write(event)
	})
	state.session = session.New(ep, session.Deps{Publisher: publisher})
	effectsFor := func(entity replication.EntityID) *effectLog {
		log, ok := state.effects[entity]
		if !ok {
			log = &effectLog{}
			state.effects[entity] = log
		}
		return log
	}
	state.session.Register(Kind, Factory(w.config, Deps{
		Clock: w.clock,
		Effects: EffectsFuncs{
			Fire: func(entity replication.EntityID, dir motion.Vec3) {
				effectsFor(entity).fires = append(effectsFor(entity).fires, dir)
			},
			Color: func(entity replication.EntityID, _, next palette.Color) {
				effectsFor(entity).colors = append(effectsFor(entity).colors, next)
			},
		},
		Sink: func(e *session.Entity) motion.Sink {
			id := e.ID()
			return motion.SinkFunc(func(position motion.Vec2, _ float64) {
				state.poses[id] = position
			})
		},
		Source: func(e *session.Entity) Source {
			src := &staticSource{}
			state.sources[e.ID()] = src
			return src
		},
	}))
	return state
}

func (w *testWorld) join(id replication.ParticipantID) *participantState {
	w.t.Helper()
	state := w.attach(replication.Participant{ID: id, Kind: replication.KindClient})
	w.clients[id] = state
	w.order = append(w.order, id)
	return state
}

func (w *testWorld) step(n int) {
	dt := 1.0 / tickRate
	for i := 0; i < n; i++ {
		w.clock.Advance(time.Second / tickRate)
		w.server.session.Advance(dt)
		for _, id := range w.order {
			if c, ok := w.clients[id]; ok {
				c.session.Advance(dt)
			}
		}
	}
}

func (w *testWorld) leave(id replication.ParticipantID) {
	w.t.Helper()
	if err := w.clients[id].session.Close(); err != nil {
		w.t.Fatalf("close %s: %v", id, err)
	}
	delete(w.clients, id)
}

// playerOf returns the replica of owner's player held by state.
func playerOf(t *testing.T, state *participantState, owner replication.ParticipantID) *Player {
	t.Helper()
	owned := state.session.OwnedBy(owner)
	if len(owned) != 1 {
		t.Fatalf("%s: expected one player owned by %s, got %d", state.session.Local().ID, owner, len(owned))
	}
	p, ok := owned[0].Behavior().(*Player)
	if !ok {
		t.Fatalf("unexpected behaviour %T", owned[0].Behavior())
	}
	return p
}

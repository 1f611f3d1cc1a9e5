package transport

import (
	"math/rand"
	"sync"
	"time"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
)

const (
	loopbackDroppedMetricKey = "transport_loopback_dropped_total"
	defaultInboxCapacity     = 1024
)

// Clock reports the current time. logging.SystemClock satisfies it.
type Clock interface {
	Now() time.Time
}

// Conditions describe the simulated link between two participants.
type Conditions struct {
	Delay    time.Duration
	Jitter   time.Duration
	DropRate float64
}

type linkKey struct {
	from replication.ParticipantID
	to   replication.ParticipantID
}

type inFlight struct {
	deliverAt time.Time
	env       proto.Envelope
}

// Network is an in-process message fabric. Every directed link delivers in
// send order; delay, jitter, and loss are applied per message.
type Network struct {
	mu         sync.Mutex
	clock      Clock
	conditions Conditions
	rng        *rand.Rand
	metrics    telemetryMetrics
	authority  replication.ParticipantID
	endpoints  map[replication.ParticipantID]*LoopbackEndpoint
	order      []replication.ParticipantID
	links      map[linkKey][]inFlight
	lastDue    map[linkKey]time.Time
}

// NewNetwork creates an empty network. The seed makes loss and jitter
// reproducible.
func NewNetwork(clock Clock, conditions Conditions, seed int64, metrics telemetryMetrics) *Network {
	if conditions.DropRate < 0 {
		conditions.DropRate = 0
	}
	if conditions.DropRate > 1 {
		conditions.DropRate = 1
	}
	return &Network{
		clock:      clock,
		conditions: conditions,
		rng:        rand.New(rand.NewSource(seed)),
		metrics:    metrics,
		endpoints:  make(map[replication.ParticipantID]*LoopbackEndpoint),
		links:      make(map[linkKey][]inFlight),
		lastDue:    make(map[linkKey]time.Time),
	}
}

// SetConditions replaces the link conditions for messages sent afterwards.
func (n *Network) SetConditions(conditions Conditions) {
	n.mu.Lock()
	n.conditions = conditions
	n.mu.Unlock()
}

// Join attaches a participant. Server and host participants become the
// authority; clients require one to be present and are announced to it.
func (n *Network) Join(p replication.Participant) (*LoopbackEndpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.endpoints[p.ID]; exists {
		return nil, ErrDuplicateParticipant
	}
	if p.IsServer() {
		if n.authority != "" {
			return nil, ErrNotAuthority
		}
		n.authority = p.ID
	} else if n.authority == "" {
		return nil, ErrNoAuthority
	}
	ep := &LoopbackEndpoint{
		network: n,
		local:   p,
		inbox:   NewInbox(defaultInboxCapacity, n.metrics),
	}
	n.endpoints[p.ID] = ep
	n.order = append(n.order, p.ID)
	if !p.IsServer() {
		n.enqueueLocked(p.ID, n.authority, proto.PeerJoined(string(p.ID), p.Kind.String()))
	}
	return ep, nil
}

// Participants lists attached participants in join order.
func (n *Network) Participants() []replication.ParticipantID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]replication.ParticipantID, len(n.order))
	copy(out, n.order)
	return out
}

func (n *Network) leave(id replication.ParticipantID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[id]; !ok {
		return
	}
	delete(n.endpoints, id)
	for i, existing := range n.order {
		if existing == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	for key := range n.links {
		if key.from == id || key.to == id {
			delete(n.links, key)
			delete(n.lastDue, key)
		}
	}
	if id == n.authority {
		for _, remaining := range n.order {
			n.enqueueLocked(id, remaining, proto.PeerLeft(string(id)))
		}
		n.authority = ""
		return
	}
	if n.authority != "" {
		n.enqueueLocked(id, n.authority, proto.PeerLeft(string(id)))
	}
}

// lossy reports whether env may be dropped by the conditioner. Only state
// updates ride the unreliable channel: a later update supersedes a lost one.
// Membership, spawn/despawn, commit requests and events are delivered
// reliably, as a retransmitting channel would.
func lossy(env proto.Envelope) bool {
	return env.Type == proto.TypeVarUpdate
}

// enqueueLocked schedules env on the from->to link.
func (n *Network) enqueueLocked(from, to replication.ParticipantID, env proto.Envelope) {
	if lossy(env) && n.conditions.DropRate > 0 && n.rng.Float64() < n.conditions.DropRate {
		if n.metrics != nil {
			n.metrics.Add(loopbackDroppedMetricKey, 1)
		}
		return
	}
	env.From = string(from)
	if env.Data != nil {
		env.Data = append([]byte(nil), env.Data...)
	}
	key := linkKey{from: from, to: to}
	due := n.clock.Now().Add(n.conditions.Delay)
	if n.conditions.Jitter > 0 {
		due = due.Add(time.Duration(n.rng.Int63n(int64(n.conditions.Jitter) + 1)))
	}
	if last, ok := n.lastDue[key]; ok && due.Before(last) {
		due = last
	}
	n.lastDue[key] = due
	n.links[key] = append(n.links[key], inFlight{deliverAt: due, env: env})
}

// deliverLocked moves every due message addressed to id into its inbox,
// visiting senders in join order.
func (n *Network) deliverLocked(ep *LoopbackEndpoint) {
	now := n.clock.Now()
	for _, from := range n.order {
		n.flushLinkLocked(linkKey{from: from, to: ep.local.ID}, ep, now)
	}
	// Senders that already left may still have membership notices queued.
	for key := range n.links {
		if key.to == ep.local.ID {
			if _, attached := n.endpoints[key.from]; !attached {
				n.flushLinkLocked(key, ep, now)
			}
		}
	}
}

func (n *Network) flushLinkLocked(key linkKey, ep *LoopbackEndpoint, now time.Time) {
	queue := n.links[key]
	delivered := 0
	for _, msg := range queue {
		if msg.deliverAt.After(now) {
			break
		}
		ep.inbox.Push(msg.env)
		delivered++
	}
	if delivered == 0 {
		return
	}
	if delivered == len(queue) {
		delete(n.links, key)
		return
	}
	n.links[key] = queue[delivered:]
}

// LoopbackEndpoint is a participant attached to a Network.
type LoopbackEndpoint struct {
	network *Network
	local   replication.Participant
	inbox   *Inbox

	mu     sync.Mutex
	closed bool
}

// Local returns the participant this endpoint represents.
func (e *LoopbackEndpoint) Local() replication.Participant { return e.local }

// Authority returns the current authority, if any.
func (e *LoopbackEndpoint) Authority() replication.ParticipantID {
	e.network.mu.Lock()
	defer e.network.mu.Unlock()
	return e.network.authority
}

func (e *LoopbackEndpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Send schedules env for delivery to a single participant.
func (e *LoopbackEndpoint) Send(to replication.ParticipantID, env proto.Envelope) error {
	if e.isClosed() {
		return ErrClosed
	}
	n := e.network
	n.mu.Lock()
	defer n.mu.Unlock()
	if !e.local.IsServer() && to != n.authority {
		return ErrNoRoute
	}
	if _, ok := n.endpoints[to]; !ok {
		return ErrUnknownParticipant
	}
	n.enqueueLocked(e.local.ID, to, env)
	return nil
}

// Broadcast schedules env for every attached participant except the sender
// and the listed exclusions.
func (e *LoopbackEndpoint) Broadcast(env proto.Envelope, except ...replication.ParticipantID) error {
	if e.isClosed() {
		return ErrClosed
	}
	if !e.local.IsServer() {
		return ErrNotAuthority
	}
	n := e.network
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range n.order {
		if id == e.local.ID || Excluded(id, except) {
			continue
		}
		n.enqueueLocked(e.local.ID, id, env)
	}
	return nil
}

// Drain returns all envelopes whose delivery time has passed.
func (e *LoopbackEndpoint) Drain() []proto.Envelope {
	if e.isClosed() {
		return nil
	}
	e.network.mu.Lock()
	e.network.deliverLocked(e)
	e.network.mu.Unlock()
	return e.inbox.Drain()
}

// Close detaches the endpoint. The authority is told the participant left;
// when the authority itself leaves every remaining participant is told.
func (e *LoopbackEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.network.leave(e.local.ID)
	return nil
}

var _ Endpoint = (*LoopbackEndpoint)(nil)

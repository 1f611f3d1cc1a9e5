// Package ws carries session envelopes over gorilla websocket connections.
// The Hub is the authority's endpoint; Client is a remote participant's.
package ws

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
	"netsync/internal/telemetry"
	"netsync/internal/transport"
)

const (
	defaultInboxCapacity = 4096
	defaultWriteTimeout  = 5 * time.Second
)

// HubConfig tunes a Hub.
type HubConfig struct {
	Logger        telemetry.Logger
	Metrics       telemetry.Metrics
	InboxCapacity int
	WriteTimeout  time.Duration
}

type peer struct {
	id   replication.ParticipantID
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func (p *peer) write(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.writeLocked(payload)
}

func (p *peer) writeLocked(payload []byte) error {
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub is the authority endpoint. Connections are attached with Serve; every
// inbound envelope is stamped with the connection's participant and staged
// for the simulation goroutine to Drain.
type Hub struct {
	local        replication.Participant
	inbox        *transport.Inbox
	logger       telemetry.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	peers  map[replication.ParticipantID]*peer
	order  []replication.ParticipantID
	closed bool
}

// NewHub constructs the endpoint for an authority participant.
func NewHub(local replication.Participant, cfg HubConfig) (*Hub, error) {
	if !local.IsServer() {
		return nil, transport.ErrNotAuthority
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	capacity := cfg.InboxCapacity
	if capacity <= 0 {
		capacity = defaultInboxCapacity
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Hub{
		local:        local,
		inbox:        transport.NewInbox(capacity, cfg.Metrics),
		logger:       logger,
		writeTimeout: timeout,
		peers:        make(map[replication.ParticipantID]*peer),
	}, nil
}

// Local returns the authority participant.
func (h *Hub) Local() replication.Participant { return h.local }

// Authority returns the hub's own identity.
func (h *Hub) Authority() replication.ParticipantID { return h.local.ID }

// Drain returns every staged inbound envelope.
func (h *Hub) Drain() []proto.Envelope { return h.inbox.Drain() }

// InboxStats reports pressure on the inbound staging ring.
func (h *Hub) InboxStats() transport.InboxStats { return h.inbox.Stats() }

// Peers lists attached participants in attach order.
func (h *Hub) Peers() []replication.ParticipantID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]replication.ParticipantID(nil), h.order...)
}

// Send writes env to a single attached participant.
func (h *Hub) Send(to replication.ParticipantID, env proto.Envelope) error {
	h.mu.RLock()
	closed := h.closed
	p := h.peers[to]
	h.mu.RUnlock()
	if closed {
		return transport.ErrClosed
	}
	if p == nil {
		return transport.ErrUnknownParticipant
	}
	env.From = string(h.local.ID)
	payload, err := proto.Encode(env)
	if err != nil {
		return err
	}
	return p.write(payload)
}

// Broadcast writes env to every attached participant not listed in except.
// Failures are joined; one slow peer does not stop delivery to the rest.
func (h *Hub) Broadcast(env proto.Envelope, except ...replication.ParticipantID) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return transport.ErrClosed
	}
	targets := make([]*peer, 0, len(h.order))
	for _, id := range h.order {
		if transport.Excluded(id, except) {
			continue
		}
		targets = append(targets, h.peers[id])
	}
	h.mu.RUnlock()

	env.From = string(h.local.ID)
	payload, err := proto.Encode(env)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range targets {
		if err := p.write(payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve attaches conn as participant and blocks reading until the
// connection fails. The participant is detached before Serve returns.
func (h *Hub) Serve(participant replication.Participant, conn *websocket.Conn) error {
	if conn == nil {
		return transport.ErrUnknownParticipant
	}
	p := &peer{id: participant.ID, conn: conn, writeTimeout: h.writeTimeout}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return transport.ErrClosed
	}
	if _, exists := h.peers[participant.ID]; exists {
		h.mu.Unlock()
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "participant already attached")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return transport.ErrDuplicateParticipant
	}
	// The welcome must be the first frame; broadcasts queue behind writeMu.
	p.writeMu.Lock()
	h.peers[participant.ID] = p
	h.order = append(h.order, participant.ID)
	h.mu.Unlock()

	welcome, err := proto.Encode(proto.Welcome(string(participant.ID), participant.Kind.String(), string(h.local.ID)))
	if err == nil {
		err = p.writeLocked(welcome)
	}
	p.writeMu.Unlock()
	if err != nil {
		h.detach(participant.ID, false)
		return err
	}
	h.push(proto.PeerJoined(string(participant.ID), participant.Kind.String()))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.detach(participant.ID, true)
			return nil
		}
		env, err := proto.Decode(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", participant.ID, err)
			continue
		}
		env.From = string(participant.ID)
		h.push(env)
	}
}

func (h *Hub) push(env proto.Envelope) {
	if !h.inbox.Push(env) {
		h.logger.Printf("inbox full, dropping %s from %s", env.Type, env.From)
	}
}

func (h *Hub) detach(id replication.ParticipantID, announce bool) {
	h.mu.Lock()
	p, ok := h.peers[id]
	if ok {
		delete(h.peers, id)
		for i, candidate := range h.order {
			if candidate == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	p.conn.Close()
	if announce {
		h.push(proto.PeerLeft(string(id)))
	}
}

// Close detaches every participant and rejects further sends.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.writeMu.Lock()
		p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		p.writeMu.Unlock()
		p.conn.Close()
	}
	return nil
}

var _ transport.Endpoint = (*Hub)(nil)

package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
	"netsync/internal/telemetry"
	"netsync/internal/transport"
)

// ErrUnexpectedGreeting is returned when the first frame is not a welcome.
var ErrUnexpectedGreeting = errors.New("ws: expected welcome")

// ClientConfig tunes a Client.
type ClientConfig struct {
	Logger        telemetry.Logger
	Metrics       telemetry.Metrics
	InboxCapacity int
	WriteTimeout  time.Duration
	Dialer        *websocket.Dialer
}

// Client is a remote participant's endpoint. Everything it receives comes
// from the authority.
type Client struct {
	local     replication.Participant
	authority replication.ParticipantID
	peer      *peer
	inbox     *transport.Inbox
	logger    telemetry.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Dial connects to endpoint (the /ws URL) with token and waits for the
// welcome that names the local participant and the authority.
func Dial(ctx context.Context, endpoint, token string, cfg ClientConfig) (*Client, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	welcome, err := proto.Decode(payload)
	if err != nil || welcome.Type != proto.TypeWelcome {
		conn.Close()
		return nil, ErrUnexpectedGreeting
	}
	kind, ok := replication.ParseKind(welcome.Kind)
	if !ok || welcome.Entity == "" || welcome.Owner == "" {
		conn.Close()
		return nil, ErrUnexpectedGreeting
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
	local := replication.Participant{ID: replication.ParticipantID(welcome.Entity), Kind: kind}
	c := &Client{
		local:     local,
		authority: replication.ParticipantID(welcome.Owner),
		peer:      &peer{id: local.ID, conn: conn, writeTimeout: timeout},
		inbox:     transport.NewInbox(capacity, cfg.Metrics),
		logger:    logger,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, payload, err := c.peer.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.inbox.Push(proto.PeerLeft(string(c.authority)))
			return
		}
		env, err := proto.Decode(payload)
		if err != nil {
			c.logger.Printf("discarding malformed message from %s: %v", c.authority, err)
			continue
		}
		env.From = string(c.authority)
		if !c.inbox.Push(env) {
			c.logger.Printf("inbox full, dropping %s", env.Type)
		}
	}
}

// Local returns the identity assigned by the authority.
func (c *Client) Local() replication.Participant { return c.local }

// Authority returns the authority's identity.
func (c *Client) Authority() replication.ParticipantID { return c.authority }

// Drain returns every envelope received since the previous call.
func (c *Client) Drain() []proto.Envelope { return c.inbox.Drain() }

// Done is closed once the connection's reader exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Send writes env to the authority. No other destination is routable.
func (c *Client) Send(to replication.ParticipantID, env proto.Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if to != c.authority {
		return transport.ErrNoRoute
	}
	env.From = string(c.local.ID)
	payload, err := proto.Encode(env)
	if err != nil {
		return err
	}
	return c.peer.write(payload)
}

// Broadcast is reserved for the authority.
func (c *Client) Broadcast(proto.Envelope, ...replication.ParticipantID) error {
	return transport.ErrNotAuthority
}

// Close sends a close frame and waits for the reader to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.peer.writeMu.Lock()
	err := c.peer.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.peer.writeMu.Unlock()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	c.peer.conn.Close()
	<-c.done
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

var _ transport.Endpoint = (*Client)(nil)

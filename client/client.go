// Package client connects to a host, mirrors the simulation from
// snapshots and interpolates remote entities for display. The shadow
// world is never authoritative.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"flysim/config"
	"flysim/event"
	"flysim/protocol"
	"flysim/transport"
)

// ErrConnection marks a failed connect or handshake. Surfaced to the
// caller without automatic retry.
var ErrConnection = errors.New("connection failed")

// State is the client connection lifecycle
type State uint32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// Client maintains a shadow world from host snapshots and sends local
// input on the same stream.
type Client struct {
	cfg   config.Config
	codec protocol.Codec
	log   *slog.Logger

	state    atomic.Uint32
	clientID atomic.Uint32
	rocketID atomic.Uint64

	conn   *transport.Conn
	events *event.Queue

	// mu guards the snapshot buffer, join/leave tracking and the
	// pending local input.
	mu        sync.Mutex
	shadow    shadow
	input     protocol.Input
	haveInput bool

	// Per-session disconnect accounting, reset on every Connect
	reason   atomic.Uint32 // event.Reason recorded before close
	reported atomic.Bool
	wg       sync.WaitGroup
}

// New creates a disconnected client.
func New(cfg config.Config, log *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg: cfg,
		codec: protocol.Codec{
			MaxFrame:          cfg.Net.MaxFrameSize,
			CompressThreshold: cfg.Net.CompressThreshold,
		},
		log:    log.With("component", "client"),
		events: event.NewQueue(),
	}, nil
}

// Connect dials the host, performs the handshake and starts the
// receive, send and watchdog tasks. Failure leaves the client
// disconnected; there is no automatic retry.
func (c *Client) Connect(addr, playerName string) error {
	if !c.castState(Disconnected, Connecting) {
		return fmt.Errorf("%w: already connected", ErrConnection)
	}

	// Fresh session, fresh disconnect accounting: a latch left over
	// from a previous connection would swallow this session's
	// Disconnected event.
	c.reason.Store(uint32(event.ReasonNone))
	c.reported.Store(false)

	nc, err := net.DialTimeout("tcp", addr, c.cfg.Net.ConnectTimeout)
	if err != nil {
		c.state.Store(uint32(Disconnected))
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	conn := transport.NewConn(nc, c.codec, c.cfg.Net.SendQueueSize)

	if err := conn.WriteMessage(protocol.Handshake{PlayerName: playerName}); err != nil {
		conn.Close()
		c.state.Store(uint32(Disconnected))
		return fmt.Errorf("%w: handshake send: %v", ErrConnection, err)
	}

	msg, err := conn.ReadMessage(c.cfg.Net.ConnectTimeout)
	if err != nil {
		conn.Close()
		c.state.Store(uint32(Disconnected))
		return fmt.Errorf("%w: handshake ack: %v", ErrConnection, err)
	}

	ack, ok := msg.(protocol.HandshakeAck)
	if !ok {
		conn.Close()
		c.state.Store(uint32(Disconnected))
		return fmt.Errorf("%w: expected handshake ack, got %T", ErrConnection, msg)
	}

	c.conn = conn
	c.clientID.Store(ack.ClientID)
	c.rocketID.Store(ack.RocketID)
	c.mu.Lock()
	c.shadow = newShadow(c.cfg.Net.SnapshotBuffer, ack.ClientID)
	c.mu.Unlock()

	c.state.Store(uint32(Connected))
	c.log.Info("connected", "addr", addr, "client", ack.ClientID)
	c.events.Push(event.Event{Type: event.Connected, Client: ack.ClientID, Entity: ack.RocketID})

	conn.Start(c.onMessage)
	c.wg.Add(3)
	go c.sendLoop()
	go c.watchdog()
	go c.supervise()

	return nil
}

// Disconnect announces the close to the host, tears the connection
// down and joins all background tasks.
func (c *Client) Disconnect() {
	if c.State() == Disconnected || c.conn == nil {
		return
	}
	c.setReason(event.ReasonQuit)
	c.conn.Send(protocol.Disconnect{Reason: "client quit"})
	c.conn.Close()
	c.wg.Wait()
}

// State returns the connection lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// ClientID returns the id assigned at handshake, 0 before connecting.
func (c *Client) ClientID() uint32 {
	return c.clientID.Load()
}

// RocketID returns the id of this player's rocket on the host.
func (c *Client) RocketID() uint64 {
	return c.rocketID.Load()
}

// Events drains pending client events without blocking.
func (c *Client) Events() []event.Event {
	return c.events.Consume()
}

// SetInput records the local controls. Thrust persists between sends;
// rotation deltas and action flags are one-shot and accumulate until
// the next send.
func (c *Client) SetInput(thrust, rotationDelta float64, flags uint8) {
	c.mu.Lock()
	c.input.Thrust = thrust
	c.input.RotationDelta += rotationDelta
	c.input.Flags |= flags
	c.haveInput = true
	c.mu.Unlock()
}

// Entities returns the displayed state of all remote entities,
// interpolated at now minus the configured delay.
func (c *Client) Entities() []protocol.EntityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shadow.sample(time.Now(), c.cfg.Net.InterpolationDelay)
}

// EntitiesAt is Entities with an explicit render time.
func (c *Client) EntitiesAt(at time.Time) []protocol.EntityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shadow.sample(at, c.cfg.Net.InterpolationDelay)
}

// LastTick returns the newest applied snapshot tick.
func (c *Client) LastTick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shadow.lastTick
}

func (c *Client) castState(from, to State) bool {
	return c.state.CompareAndSwap(uint32(from), uint32(to))
}

func (c *Client) setReason(r event.Reason) {
	c.reason.CompareAndSwap(uint32(event.ReasonNone), uint32(r))
}

// --- background tasks ---

func (c *Client) onMessage(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Snapshot:
		c.applySnapshot(msg)

	case protocol.Heartbeat:
		// Liveness already recorded by the transport

	case protocol.Disconnect:
		c.setReason(event.ReasonQuit)
		c.conn.Close()
	}
}

// applySnapshot buffers one snapshot and emits join/leave and
// state-received events. Stale ticks are discarded defensively even
// though the transport already preserves order.
func (c *Client) applySnapshot(snap protocol.Snapshot) {
	c.mu.Lock()
	joined, left, applied := c.shadow.apply(snap, time.Now())
	c.mu.Unlock()

	if !applied {
		return
	}

	for _, e := range joined {
		c.events.Push(event.Event{Type: event.PlayerJoined, Client: e.Owner, Entity: e.ID})
	}
	for _, e := range left {
		c.events.Push(event.Event{Type: event.PlayerLeft, Client: e.owner, Entity: e.id})
	}
	c.events.Push(event.Event{Type: event.GameStateReceived, Tick: snap.Tick})
}

// sendLoop serializes local input at the input rate and a heartbeat at
// the slower heartbeat cadence, both on the same connection.
func (c *Client) sendLoop() {
	defer c.wg.Done()

	inputTicker := time.NewTicker(time.Second / time.Duration(c.cfg.Net.InputRate))
	defer inputTicker.Stop()
	heartbeat := time.NewTicker(c.cfg.Net.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.conn.Closed():
			return
		case <-inputTicker.C:
			c.mu.Lock()
			in := c.input
			have := c.haveInput
			c.input.RotationDelta = 0
			c.input.Flags = 0
			c.mu.Unlock()
			if have {
				c.conn.Send(in)
			}
		case <-heartbeat.C:
			c.conn.Send(protocol.Heartbeat{})
		}
	}
}

// watchdog self-declares disconnection when the host goes silent past
// the server timeout.
func (c *Client) watchdog() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Net.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.conn.Closed():
			return
		case <-ticker.C:
			if time.Since(c.conn.LastSeen()) > c.cfg.Net.ServerTimeout {
				c.log.Warn("host silent past timeout")
				c.setReason(event.ReasonServerTimeout)
				c.conn.Close()
				return
			}
		}
	}
}

// supervise emits the single Disconnected event once the connection
// is terminal.
func (c *Client) supervise() {
	defer c.wg.Done()

	<-c.conn.Closed()
	c.conn.Join()
	c.state.Store(uint32(Disconnected))

	if !c.reported.CompareAndSwap(false, true) {
		return
	}

	reason := event.Reason(c.reason.Load())
	if reason == event.ReasonNone {
		if err := c.conn.Err(); errors.Is(err, protocol.ErrProtocol) {
			reason = event.ReasonProtocol
		} else {
			reason = event.ReasonSocketError
		}
	}

	c.log.Info("disconnected", "reason", reason.String())
	c.events.Push(event.Event{Type: event.Disconnected, Reason: reason})
}

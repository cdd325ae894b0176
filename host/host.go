// Package host runs the authoritative side of a networked simulation:
// it owns the canonical world, advances it on a fixed tick, accepts
// client connections, broadcasts snapshots and monitors heartbeats.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"flysim/config"
	"flysim/event"
	"flysim/protocol"
	"flysim/sim"
	"flysim/transport"
	"flysim/vmath"
)

// ErrBind marks a fatal listener startup failure. It is the only
// error that takes the whole host down.
var ErrBind = errors.New("bind failed")

// client is one registered connection. At most one exists per client
// id; the id is assigned at handshake and never reused in a session.
type client struct {
	id       uint32
	name     string
	rocketID sim.EntityID
	conn     *transport.Conn
	limiter  *rate.Limiter

	// Reason recorded before Close so the supervisor emits the
	// right disconnect event, exactly once.
	reason   atomic.Uint32 // event.Reason
	reported atomic.Bool
}

func (c *client) setReason(r event.Reason) {
	c.reason.CompareAndSwap(uint32(event.ReasonNone), uint32(r))
}

// Host owns the canonical world and all client connections.
type Host struct {
	cfg   config.Config
	codec protocol.Codec
	log   *slog.Logger

	// mu guards world, clients and pending input. Held only for
	// decode-apply or copy-snapshot sections, never across I/O.
	mu      sync.Mutex
	world   *sim.World
	clients map[uint32]*client
	pending map[uint32]protocol.Input

	nextClientID atomic.Uint32
	tick         atomic.Uint64

	events   *event.Queue
	listener net.Listener

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wraps an existing world. The world must not be touched directly
// while the host runs; use WithWorld.
func New(cfg config.Config, world *sim.World, log *slog.Logger) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		cfg: cfg,
		codec: protocol.Codec{
			MaxFrame:          cfg.Net.MaxFrameSize,
			CompressThreshold: cfg.Net.CompressThreshold,
		},
		log:     log.With("component", "host"),
		world:   world,
		clients: make(map[uint32]*client),
		pending: make(map[uint32]protocol.Input),
		events:  event.NewQueue(),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start binds the listener and launches the accept loop, the tick
// loop and the heartbeat monitor. Binding failure is fatal.
func (h *Host) Start(bindAddr string) error {
	if !h.running.CompareAndSwap(false, true) {
		return nil // Already running
	}

	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		h.running.Store(false)
		return fmt.Errorf("%w: %s: %v", ErrBind, bindAddr, err)
	}
	h.listener = ln
	h.log.Info("listening", "addr", ln.Addr().String())

	h.wg.Add(3)
	go h.acceptLoop()
	go h.tickLoop()
	go h.monitorLoop()

	return nil
}

// Stop closes the listener and every connection, then joins all
// background tasks. No task outlives the host.
func (h *Host) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	h.stopOnce.Do(func() { close(h.stopCh) })

	if h.listener != nil {
		h.listener.Close()
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		cl.setReason(event.ReasonShutdown)
		cl.conn.Send(protocol.Disconnect{Reason: "host shutting down"})
		cl.conn.Close()
	}

	h.wg.Wait()
}

// Events drains pending host events without blocking.
func (h *Host) Events() []event.Event {
	return h.events.Consume()
}

// Tick returns the current simulation tick.
func (h *Host) Tick() uint64 {
	return h.tick.Load()
}

// ClientCount returns the number of registered connections.
func (h *Host) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Addr returns the bound listener address, empty before Start.
func (h *Host) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// WithWorld runs fn with exclusive access to the canonical world.
// Embedding game logic uses this instead of touching shared state.
func (h *Host) WithWorld(fn func(*sim.World)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.world)
}

// --- accept path ---

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		nc, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.stopCh:
				return
			default:
				continue
			}
		}

		h.wg.Add(1)
		go h.handshake(nc)
	}
}

// handshake performs the bounded-timeout registration dance. Failure
// closes the stream without registering a connection.
func (h *Host) handshake(nc net.Conn) {
	defer h.wg.Done()

	conn := transport.NewConn(nc, h.codec, h.cfg.Net.SendQueueSize)

	msg, err := conn.ReadMessage(h.cfg.Net.HandshakeTimeout)
	if err != nil {
		h.log.Debug("handshake failed", "addr", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	hello, ok := msg.(protocol.Handshake)
	if !ok {
		h.log.Debug("handshake rejected", "addr", conn.RemoteAddr(), "got", fmt.Sprintf("%T", msg))
		conn.Close()
		return
	}

	h.mu.Lock()
	if len(h.clients) >= h.cfg.Net.MaxClients {
		h.mu.Unlock()
		conn.WriteMessage(protocol.Disconnect{Reason: "server full"})
		conn.Close()
		return
	}

	id := h.nextClientID.Add(1)
	rocketID, err := h.world.SpawnRocketAt(h.spawnPointLocked())
	if err != nil {
		h.mu.Unlock()
		conn.Close()
		return
	}

	cl := &client{
		id:       id,
		name:     hello.PlayerName,
		rocketID: rocketID,
		conn:     conn,
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.Net.InputLimit), h.cfg.Net.InputBurst),
	}
	if r, ok := h.world.Rocket(rocketID); ok {
		r.Owner = id
	}
	h.clients[id] = cl
	h.mu.Unlock()

	if err := conn.WriteMessage(protocol.HandshakeAck{ClientID: id, RocketID: uint64(rocketID)}); err != nil {
		// Never registered from the embedding loop's point of view
		h.mu.Lock()
		delete(h.clients, id)
		h.world.Remove(rocketID)
		h.mu.Unlock()
		conn.Close()
		return
	}

	h.log.Info("client connected", "client", id, "name", cl.name, "addr", conn.RemoteAddr())
	h.events.Push(event.Event{
		Type:   event.ClientConnected,
		Client: id,
		Name:   cl.name,
		Entity: uint64(rocketID),
	})

	conn.Start(func(m protocol.Message) { h.onMessage(cl, m) })

	h.wg.Add(1)
	go h.supervise(cl)
}

// spawnPointLocked picks the launch state for a fresh rocket: on the
// surface of the first planet pointing away from it, or the origin in
// an empty map. Caller holds mu.
func (h *Host) spawnPointLocked() (vmath.Vec2, vmath.Vec2, float64) {
	planets := h.world.Planets()
	if len(planets) == 0 {
		return vmath.Vec2{}, vmath.Vec2{}, -math.Pi / 2
	}
	p := planets[0]
	up := vmath.V(0, -1)
	pos := p.Pos.Add(up.Scale(p.Radius + h.cfg.Sim.RocketRadius))
	return pos, p.Vel, -math.Pi / 2
}

// --- per-connection message handling ---

func (h *Host) onMessage(cl *client, m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Input:
		if !cl.limiter.Allow() {
			return // Flooding; drop silently
		}
		h.mu.Lock()
		h.pending[cl.id] = msg // Last input wins per tick
		h.mu.Unlock()
		h.events.Push(event.Event{
			Type:          event.PlayerInput,
			Client:        cl.id,
			Thrust:        msg.Thrust,
			RotationDelta: msg.RotationDelta,
			Flags:         msg.Flags,
		})

	case protocol.Heartbeat:
		// Liveness already recorded by the transport

	case protocol.Disconnect:
		cl.setReason(event.ReasonQuit)
		cl.conn.Close()

	default:
		// Anything else after registration is a protocol violation
		cl.setReason(event.ReasonProtocol)
		cl.conn.Close()
	}
}

// supervise waits for connection teardown and performs the one and
// only cleanup for this client.
func (h *Host) supervise(cl *client) {
	defer h.wg.Done()

	<-cl.conn.Closed()
	cl.conn.Join()

	reason := event.Reason(cl.reason.Load())
	if reason == event.ReasonNone {
		if err := cl.conn.Err(); errors.Is(err, protocol.ErrProtocol) {
			reason = event.ReasonProtocol
		} else {
			reason = event.ReasonSocketError
		}
	}
	h.dropClient(cl, reason)
}

// dropClient unregisters the connection, removes the player's rocket
// and emits ClientDisconnected exactly once.
func (h *Host) dropClient(cl *client, reason event.Reason) {
	cl.conn.Close()
	if !cl.reported.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	delete(h.clients, cl.id)
	delete(h.pending, cl.id)
	if cl.rocketID != 0 {
		h.world.Remove(cl.rocketID)
	}
	h.mu.Unlock()

	h.log.Info("client disconnected", "client", cl.id, "reason", reason.String())
	h.events.Push(event.Event{
		Type:   event.ClientDisconnected,
		Client: cl.id,
		Reason: reason,
	})
}

// --- tick loop ---

func (h *Host) tickLoop() {
	defer h.wg.Done()

	dt := 1.0 / float64(h.cfg.Net.TickRate)
	ticker := time.NewTicker(time.Duration(float64(time.Second) * dt))
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.step(dt)
		}
	}
}

// step applies queued input, advances the world one tick and
// broadcasts the snapshot. The lock covers decode-apply and the state
// copy only; serialization and sends happen outside it.
func (h *Host) step(dt float64) {
	h.mu.Lock()
	for cid, in := range h.pending {
		h.applyInputLocked(cid, in)
	}
	clear(h.pending)

	h.world.Update(dt)
	tick := h.tick.Add(1)
	entities := snapshotEntities(h.world)

	conns := make([]*transport.Conn, 0, len(h.clients))
	for _, cl := range h.clients {
		conns = append(conns, cl.conn)
	}
	h.mu.Unlock()

	snap := protocol.Snapshot{Tick: tick, Entities: entities}
	for _, conn := range conns {
		// Non-blocking: a slow client drops this snapshot and the
		// next tick supersedes it. Other clients are unaffected.
		conn.Send(snap)
	}
}

// applyInputLocked applies one client's last input. Caller holds mu.
func (h *Host) applyInputLocked(cid uint32, in protocol.Input) {
	cl, ok := h.clients[cid]
	if !ok {
		return
	}

	if in.Flags&protocol.InputLaunch != 0 {
		if _, alive := h.world.Rocket(cl.rocketID); !alive {
			if id, err := h.world.SpawnRocketAt(h.spawnPointLocked()); err == nil {
				cl.rocketID = id
				if r, ok := h.world.Rocket(id); ok {
					r.Owner = cl.id
				}
			}
		}
	}

	h.world.SetRocketThrust(cl.rocketID, in.Thrust)
	if in.RotationDelta != 0 {
		h.world.RotateRocket(cl.rocketID, in.RotationDelta)
	}

	if in.Flags&protocol.InputConvert != 0 {
		if _, converted := h.world.ConvertRocketToSatellite(cl.rocketID); converted {
			cl.rocketID = 0
		}
	}
}

// --- heartbeat monitor ---

func (h *Host) monitorLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Net.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// checkHeartbeats force-closes connections silent past the timeout.
// The supervisor emits the Timeout disconnect event.
func (h *Host) checkHeartbeats() {
	h.mu.Lock()
	var stale []*client
	for _, cl := range h.clients {
		if time.Since(cl.conn.LastSeen()) > h.cfg.Net.ClientTimeout {
			stale = append(stale, cl)
		}
	}
	h.mu.Unlock()

	for _, cl := range stale {
		h.log.Warn("client timed out", "client", cl.id)
		cl.setReason(event.ReasonTimeout)
		cl.conn.Send(protocol.Disconnect{Reason: "connection timeout"})
		cl.conn.Close()
	}
}

// snapshotEntities copies world state into wire form. Caller holds mu.
func snapshotEntities(w *sim.World) []protocol.EntityState {
	out := make([]protocol.EntityState, 0, w.PlanetCount()+w.RocketCount()+w.SatelliteCount())

	for _, p := range w.Planets() {
		out = append(out, protocol.EntityState{
			Kind: protocol.KindPlanet, ID: uint64(p.ID),
			PosX: p.Pos.X, PosY: p.Pos.Y, VelX: p.Vel.X, VelY: p.Vel.Y,
			Mass: p.Mass, Radius: p.Radius, Pinned: p.Pinned, Name: p.Name,
		})
	}
	for _, r := range w.Rockets() {
		out = append(out, protocol.EntityState{
			Kind: protocol.KindRocket, ID: uint64(r.ID),
			PosX: r.Pos.X, PosY: r.Pos.Y, VelX: r.Vel.X, VelY: r.Vel.Y,
			Rotation: r.Rotation, Thrust: r.ThrustLevel,
			Fuel: r.Fuel, MaxFuel: r.MaxFuel,
			Status: uint8(r.Status), Owner: r.Owner,
		})
	}
	for _, s := range w.Satellites() {
		out = append(out, protocol.EntityState{
			Kind: protocol.KindSatellite, ID: uint64(s.ID),
			PosX: s.Pos.X, PosY: s.Pos.Y, VelX: s.Vel.X, VelY: s.Vel.Y,
			Target: uint64(s.Target), Fuel: s.Fuel, MaxFuel: s.MaxFuel,
			Status: uint8(s.Status),
		})
	}
	return out
}

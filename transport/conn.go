// Package transport handles framed message I/O over a single TCP
// stream. The host owns one Conn per client; the client owns one for
// its host. Locks are never held across I/O; writes go through a
// bounded queue that drops when saturated.
package transport

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"flysim/protocol"
)

// State tracks connection lifecycle
type State uint32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected // terminal
)

const ioBufferSize = 64 * 1024

// Conn is one framed stream endpoint.
type Conn struct {
	nc     net.Conn
	codec  protocol.Codec
	reader *bufio.Reader
	writer *bufio.Writer

	state    atomic.Uint32
	lastSeen atomic.Int64 // UnixNano of last inbound message

	sendCh    chan protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// First error that ended a loop, nil on clean close
	errMu sync.Mutex
	err   error
}

// NewConn wraps an established stream. The connection stays in the
// connecting state until Start; handshake I/O happens synchronously
// before loops run.
func NewConn(nc net.Conn, codec protocol.Codec, sendQueueSize int) *Conn {
	c := &Conn{
		nc:      nc,
		codec:   codec,
		reader:  bufio.NewReaderSize(nc, ioBufferSize),
		writer:  bufio.NewWriterSize(nc, ioBufferSize),
		sendCh:  make(chan protocol.Message, sendQueueSize),
		closeCh: make(chan struct{}),
	}
	c.lastSeen.Store(time.Now().UnixNano())
	return c
}

// ReadMessage performs one synchronous framed read with a deadline.
// Only valid before Start.
func (c *Conn) ReadMessage(timeout time.Duration) (protocol.Message, error) {
	if timeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(timeout))
		defer c.nc.SetReadDeadline(time.Time{})
	}
	m, err := c.codec.Read(c.reader)
	if err == nil {
		c.touch()
	}
	return m, err
}

// WriteMessage performs one synchronous framed write and flush.
// Only valid before Start.
func (c *Conn) WriteMessage(m protocol.Message) error {
	if err := c.codec.Write(c.writer, m); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Start launches the read and write loops. onMessage runs on the read
// loop goroutine for every inbound message.
func (c *Conn) Start(onMessage func(protocol.Message)) {
	c.state.Store(uint32(StateConnected))
	c.wg.Add(2)
	go c.readLoop(onMessage)
	go c.writeLoop()
}

// Send queues a message for transmission. Returns false when the
// connection is down or the queue is saturated; a dropped snapshot is
// superseded by the next tick, never retried.
func (c *Conn) Send(m protocol.Message) bool {
	if c.State() != StateConnected {
		return false
	}
	select {
	case c.sendCh <- m:
		return true
	default:
		return false // Queue full
	}
}

// Close tears the connection down. Idempotent; in-flight sends to a
// closed connection are discarded.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(uint32(StateDisconnected))
		close(c.closeCh)
		c.nc.Close()
	})
}

// Closed reports teardown; closed once the connection is terminal.
func (c *Conn) Closed() <-chan struct{} {
	return c.closeCh
}

// Join blocks until both loops have exited.
func (c *Conn) Join() {
	c.wg.Wait()
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// LastSeen returns the arrival time of the last inbound message.
func (c *Conn) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Err returns the first loop error, nil after a clean close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// RemoteAddr returns the peer address string.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

func (c *Conn) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Conn) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *Conn) readLoop(onMessage func(protocol.Message)) {
	defer c.wg.Done()
	defer c.Close()

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		m, err := c.codec.Read(c.reader)
		if err != nil {
			c.fail(err)
			return
		}

		c.touch()
		onMessage(m)
	}
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	defer c.Close()

	for {
		select {
		case <-c.closeCh:
			return
		case m := <-c.sendCh:
			if err := c.codec.Write(c.writer, m); err != nil {
				c.fail(err)
				return
			}
			if err := c.writer.Flush(); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

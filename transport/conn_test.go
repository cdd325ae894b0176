package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"flysim/protocol"
)

func testCodec() protocol.Codec {
	return protocol.Codec{MaxFrame: 1 << 20}
}

func pipePair(t *testing.T, queueSize int) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewConn(a, testCodec(), queueSize)
	cb := NewConn(b, testCodec(), queueSize)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestSynchronousHandshakeExchange(t *testing.T) {
	ca, cb := pipePair(t, 4)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ca.WriteMessage(protocol.Handshake{PlayerName: "Ada"})
	}()

	m, err := cb.ReadMessage(time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if hs, ok := m.(protocol.Handshake); !ok || hs.PlayerName != "Ada" {
		t.Fatalf("got %T %+v", m, m)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestReadMessageTimeout(t *testing.T) {
	ca, _ := pipePair(t, 4)

	_, err := ca.ReadMessage(50 * time.Millisecond)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("want deadline error, got %v", err)
	}
}

func TestStartedConnDeliversMessages(t *testing.T) {
	ca, cb := pipePair(t, 4)

	got := make(chan protocol.Message, 8)
	ca.Start(func(m protocol.Message) { got <- m })
	cb.Start(func(protocol.Message) {})

	before := ca.LastSeen()
	if !cb.Send(protocol.Input{Thrust: 0.5}) {
		t.Fatal("send refused on live connection")
	}

	select {
	case m := <-got:
		if in, ok := m.(protocol.Input); !ok || in.Thrust != 0.5 {
			t.Fatalf("got %T %+v", m, m)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}

	if ca.LastSeen().Before(before) {
		t.Fatal("LastSeen went backwards after inbound message")
	}
}

func TestSendDropsWhenQueueSaturated(t *testing.T) {
	a, _ := net.Pipe() // peer never reads; writes block forever
	ca := NewConn(a, testCodec(), 1)
	t.Cleanup(ca.Close)
	ca.Start(func(protocol.Message) {})

	// The write loop absorbs at most one message before blocking on
	// the pipe, and the queue holds one more.
	sent := 0
	dropped := false
	for i := 0; i < 10; i++ {
		if ca.Send(protocol.Heartbeat{}) {
			sent++
		} else {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("send never dropped against a stuck peer")
	}
	if sent > 2 {
		t.Fatalf("queue of 1 accepted %d sends", sent)
	}
}

func TestSendRefusedAfterClose(t *testing.T) {
	ca, _ := pipePair(t, 4)
	ca.Start(func(protocol.Message) {})
	ca.Close()

	if ca.Send(protocol.Heartbeat{}) {
		t.Fatal("send accepted on closed connection")
	}
	if ca.State() != StateDisconnected {
		t.Fatalf("state %v after close", ca.State())
	}
}

func TestPeerCloseTearsDown(t *testing.T) {
	a, b := net.Pipe()
	ca := NewConn(a, testCodec(), 4)
	ca.Start(func(protocol.Message) {})

	b.Close()

	select {
	case <-ca.Closed():
	case <-time.After(time.Second):
		t.Fatal("close never observed")
	}
	ca.Join()

	if err := ca.Err(); !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("want EOF-ish error, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ca, _ := pipePair(t, 4)
	ca.Start(func(protocol.Message) {})
	ca.Close()
	ca.Close()
	ca.Join()

	select {
	case <-ca.Closed():
	default:
		t.Fatal("Closed channel not closed")
	}
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message is one decoded wire message. The set of kinds is closed.
type Message interface {
	tag() Tag
	encode(b []byte) ([]byte, error)
}

// Handshake is the first (and only first) client-to-host message.
type Handshake struct {
	PlayerName string
}

// HandshakeAck confirms registration and carries the session-unique
// client id and the id of the rocket spawned for the player.
type HandshakeAck struct {
	ClientID uint32
	RocketID uint64
}

// Input carries one client's controls. The host applies the last
// input received per client per tick.
type Input struct {
	Thrust        float64
	RotationDelta float64
	Flags         uint8
}

// Input action flags
const (
	InputLaunch  uint8 = 0x01
	InputConvert uint8 = 0x02
)

// Heartbeat keeps an otherwise idle connection alive.
type Heartbeat struct{}

// Disconnect announces an intentional close. Best-effort, either
// direction.
type Disconnect struct {
	Reason string
}

func (Handshake) tag() Tag    { return TagHandshake }
func (HandshakeAck) tag() Tag { return TagHandshakeAck }
func (Snapshot) tag() Tag     { return TagSnapshot }
func (Input) tag() Tag        { return TagInput }
func (Heartbeat) tag() Tag    { return TagHeartbeat }
func (Disconnect) tag() Tag   { return TagDisconnect }

func (m Handshake) encode(b []byte) ([]byte, error) {
	return putString(b, m.PlayerName)
}

func (m HandshakeAck) encode(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint32(b, m.ClientID)
	return binary.BigEndian.AppendUint64(b, m.RocketID), nil
}

func (m Input) encode(b []byte) ([]byte, error) {
	b = putF64(b, m.Thrust)
	b = putF64(b, m.RotationDelta)
	return append(b, m.Flags), nil
}

func (m Heartbeat) encode(b []byte) ([]byte, error) {
	return b, nil
}

func (m Disconnect) encode(b []byte) ([]byte, error) {
	return putString(b, m.Reason)
}

func decodeBody(tag Tag, body []byte) (Message, error) {
	r := reader{buf: body}
	var m Message

	switch tag {
	case TagHandshake:
		m = Handshake{PlayerName: r.str()}
	case TagHandshakeAck:
		m = HandshakeAck{ClientID: r.u32(), RocketID: r.u64()}
	case TagSnapshot:
		snap, err := decodeSnapshot(&r)
		if err != nil {
			return nil, err
		}
		m = snap
	case TagInput:
		m = Input{Thrust: r.f64(), RotationDelta: r.f64(), Flags: r.u8()}
	case TagHeartbeat:
		m = Heartbeat{}
	case TagDisconnect:
		m = Disconnect{Reason: r.str()}
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrProtocol, uint8(tag))
	}

	if r.failed {
		return nil, fmt.Errorf("%w: truncated %v body", ErrProtocol, tag)
	}
	return m, nil
}

// --- encode helpers ---

func putF64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}

// putString writes a uint16-prefixed string. Strings that do not fit
// the prefix are rejected rather than silently truncated.
func putString(b []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: string of %d bytes exceeds length prefix", ErrProtocol, len(s))
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...), nil
}

// reader consumes a body buffer, latching failure on short reads so
// callers check once at the end.
type reader struct {
	buf    []byte
	off    int
	failed bool
}

func (r *reader) take(n int) []byte {
	if r.failed || r.off+n > len(r.buf) {
		r.failed = true
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *reader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (t Tag) String() string {
	switch t {
	case TagHandshake:
		return "handshake"
	case TagHandshakeAck:
		return "handshake-ack"
	case TagSnapshot:
		return "snapshot"
	case TagInput:
		return "input"
	case TagHeartbeat:
		return "heartbeat"
	case TagDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

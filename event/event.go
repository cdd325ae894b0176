// Package event carries simulation and connection lifecycle events
// from background network tasks to the embedding game loop. The queue
// is polled, never blocking the producer or the consumer.
package event

// Type identifies the semantic meaning of an event
type Type uint8

const (
	// Host-side events
	ClientConnected Type = iota + 1
	ClientDisconnected
	PlayerInput

	// Client-side events
	Connected
	Disconnected
	GameStateReceived
	PlayerJoined
	PlayerLeft
)

// Reason explains a disconnection. Every disconnection on either side
// surfaces as an event carrying one; there is no silent loss.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonTimeout
	ReasonServerTimeout
	ReasonQuit
	ReasonSocketError
	ReasonProtocol
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonServerTimeout:
		return "server timeout"
	case ReasonQuit:
		return "quit"
	case ReasonSocketError:
		return "socket error"
	case ReasonProtocol:
		return "protocol error"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// Event is a single queued occurrence. Fields beyond Type are
// populated per kind; unused fields stay zero.
type Event struct {
	Type   Type
	Client uint32 // client id for connection and input events
	Name   string // player name on ClientConnected
	Reason Reason // populated on disconnect events

	// PlayerInput payload
	Thrust        float64
	RotationDelta float64
	Flags         uint8

	// GameStateReceived / join-leave payload
	Tick   uint64
	Entity uint64
}

package client

import (
	"time"

	"flysim/protocol"
)

// frame is one buffered snapshot with its arrival time.
type frame struct {
	at   time.Time
	snap protocol.Snapshot
}

// departed records an entity that vanished between snapshots.
type departed struct {
	id    uint64
	owner uint32
}

// shadow is the client's non-authoritative reconstruction of the
// remote world: a small tick-ordered snapshot buffer sized to cover
// the interpolation delay, plus join/leave tracking for other
// players' rockets. Not goroutine-safe; the Client guards it.
type shadow struct {
	cap      int
	ownID    uint32
	lastTick uint64
	frames   []frame
	known    map[uint64]uint32 // rocket id -> owning client
}

func newShadow(capacity int, ownID uint32) shadow {
	return shadow{
		cap:   capacity,
		ownID: ownID,
		known: make(map[uint64]uint32),
	}
}

// apply buffers a snapshot. Snapshots at or below the last applied
// tick are discarded. Returns entities newly present and newly absent
// among other players' rockets.
func (s *shadow) apply(snap protocol.Snapshot, now time.Time) (joined []protocol.EntityState, left []departed, applied bool) {
	if snap.Tick <= s.lastTick {
		return nil, nil, false
	}
	s.lastTick = snap.Tick

	s.frames = append(s.frames, frame{at: now, snap: snap})
	if len(s.frames) > s.cap {
		s.frames = s.frames[len(s.frames)-s.cap:]
	}

	// A rocket owned by another client is that player's vehicle;
	// presence changes are joins and leaves.
	current := make(map[uint64]uint32)
	for _, e := range snap.Entities {
		if e.Kind == protocol.KindRocket && e.Owner != 0 && e.Owner != s.ownID {
			current[e.ID] = e.Owner
			if _, seen := s.known[e.ID]; !seen {
				joined = append(joined, e)
			}
		}
	}
	for id, owner := range s.known {
		if _, still := current[id]; !still {
			left = append(left, departed{id: id, owner: owner})
		}
	}
	s.known = current

	return joined, left, true
}

// sample returns the displayed state of every remote entity at the
// render time minus the interpolation delay: the linear interpolation
// between the two buffered snapshots straddling that instant, with
// the fraction clamped to [0,1]. A single buffered snapshot is used
// raw.
func (s *shadow) sample(at time.Time, delay time.Duration) []protocol.EntityState {
	if len(s.frames) == 0 {
		return nil
	}
	if len(s.frames) == 1 {
		return cloneEntities(s.frames[0].snap.Entities)
	}

	target := at.Add(-delay)

	// Newest frame pair straddling target; clamping below covers
	// targets outside the buffered span.
	hi := len(s.frames) - 1
	for i := 1; i < len(s.frames); i++ {
		if s.frames[i].at.After(target) {
			hi = i
			break
		}
	}
	lo := hi - 1

	a, b := s.frames[lo], s.frames[hi]
	span := b.at.Sub(a.at)
	var t float64
	if span > 0 {
		t = float64(target.Sub(a.at)) / float64(span)
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	older := make(map[uint64]protocol.EntityState, len(a.snap.Entities))
	for _, e := range a.snap.Entities {
		older[e.ID] = e
	}

	out := make([]protocol.EntityState, 0, len(b.snap.Entities))
	for _, e := range b.snap.Entities {
		prev, ok := older[e.ID]
		if !ok {
			out = append(out, e) // Fresh spawn, no older sample
			continue
		}
		out = append(out, lerpEntity(prev, e, t))
	}
	return out
}

func lerpEntity(a, b protocol.EntityState, t float64) protocol.EntityState {
	e := b
	e.PosX = lerp(a.PosX, b.PosX, t)
	e.PosY = lerp(a.PosY, b.PosY, t)
	e.VelX = lerp(a.VelX, b.VelX, t)
	e.VelY = lerp(a.VelY, b.VelY, t)
	e.Rotation = lerp(a.Rotation, b.Rotation, t)
	return e
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func cloneEntities(in []protocol.EntityState) []protocol.EntityState {
	out := make([]protocol.EntityState, len(in))
	copy(out, in)
	return out
}

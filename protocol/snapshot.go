package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// EntityKind discriminates snapshot entries. The set of kinds is
// fixed by design, not open-ended.
type EntityKind uint8

const (
	KindPlanet EntityKind = iota + 1
	KindRocket
	KindSatellite
)

// EntityState is one entity's serialized state inside a snapshot.
// Fields are populated per kind; identifiers are carried instead of
// references so the receiver resolves them through its own world.
type EntityState struct {
	Kind EntityKind
	ID   uint64

	PosX, PosY float64
	VelX, VelY float64

	// Planet fields
	Mass   float64
	Radius float64
	Pinned bool
	Name   string

	// Rocket fields
	Rotation float64
	Thrust   float64
	Owner    uint32

	// Rocket and satellite fields
	Fuel    float64
	MaxFuel float64
	Status  uint8

	// Satellite fields
	Target uint64
}

// Snapshot is a point-in-time copy of world state broadcast by the
// host. Tick is monotonically increasing per connection; receivers
// discard stale ticks defensively.
type Snapshot struct {
	Tick     uint64
	Entities []EntityState
}

const digestSize = 32

// encode lays out tick, a BLAKE3 digest of the entity section for
// desync detection, and the entity section itself.
func (m Snapshot) encode(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint64(b, m.Tick)

	var section []byte
	section = binary.BigEndian.AppendUint32(section, uint32(len(m.Entities)))
	for _, e := range m.Entities {
		var err error
		if section, err = encodeEntity(section, e); err != nil {
			return nil, err
		}
	}

	digest := blake3.Sum256(section)
	b = append(b, digest[:]...)
	return append(b, section...), nil
}

func decodeSnapshot(r *reader) (Snapshot, error) {
	tick := r.u64()
	digest := r.take(digestSize)
	if r.failed {
		return Snapshot{}, fmt.Errorf("%w: truncated snapshot header", ErrProtocol)
	}

	section := r.buf[r.off:]
	sum := blake3.Sum256(section)
	if !bytes.Equal(digest, sum[:]) {
		return Snapshot{}, fmt.Errorf("%w: snapshot digest mismatch at tick %d", ErrProtocol, tick)
	}

	count := int(r.u32())
	if count < 0 || count > len(section) {
		return Snapshot{}, fmt.Errorf("%w: implausible entity count %d", ErrProtocol, count)
	}

	entities := make([]EntityState, 0, count)
	for i := 0; i < count; i++ {
		e, err := decodeEntity(r)
		if err != nil {
			return Snapshot{}, err
		}
		entities = append(entities, e)
	}

	return Snapshot{Tick: tick, Entities: entities}, nil
}

func encodeEntity(b []byte, e EntityState) ([]byte, error) {
	b = append(b, byte(e.Kind))
	b = binary.BigEndian.AppendUint64(b, e.ID)
	b = putF64(b, e.PosX)
	b = putF64(b, e.PosY)
	b = putF64(b, e.VelX)
	b = putF64(b, e.VelY)

	switch e.Kind {
	case KindPlanet:
		b = putF64(b, e.Mass)
		b = putF64(b, e.Radius)
		pinned := byte(0)
		if e.Pinned {
			pinned = 1
		}
		b = append(b, pinned)
		var err error
		if b, err = putString(b, e.Name); err != nil {
			return nil, err
		}
	case KindRocket:
		b = putF64(b, e.Rotation)
		b = putF64(b, e.Thrust)
		b = putF64(b, e.Fuel)
		b = putF64(b, e.MaxFuel)
		b = append(b, e.Status)
		b = binary.BigEndian.AppendUint32(b, e.Owner)
	case KindSatellite:
		b = binary.BigEndian.AppendUint64(b, e.Target)
		b = putF64(b, e.Fuel)
		b = putF64(b, e.MaxFuel)
		b = append(b, e.Status)
	}
	return b, nil
}

func decodeEntity(r *reader) (EntityState, error) {
	e := EntityState{
		Kind: EntityKind(r.u8()),
		ID:   r.u64(),
		PosX: r.f64(),
		PosY: r.f64(),
		VelX: r.f64(),
		VelY: r.f64(),
	}

	switch e.Kind {
	case KindPlanet:
		e.Mass = r.f64()
		e.Radius = r.f64()
		e.Pinned = r.u8() == 1
		e.Name = r.str()
	case KindRocket:
		e.Rotation = r.f64()
		e.Thrust = r.f64()
		e.Fuel = r.f64()
		e.MaxFuel = r.f64()
		e.Status = r.u8()
		e.Owner = r.u32()
	case KindSatellite:
		e.Target = r.u64()
		e.Fuel = r.f64()
		e.MaxFuel = r.f64()
		e.Status = r.u8()
	default:
		return EntityState{}, fmt.Errorf("%w: unknown entity kind 0x%02x", ErrProtocol, uint8(e.Kind))
	}

	if r.failed {
		return EntityState{}, fmt.Errorf("%w: truncated entity record", ErrProtocol)
	}
	return e, nil
}

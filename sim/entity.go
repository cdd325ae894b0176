package sim

import (
	"fmt"
	"math"

	"flysim/config"
	"flysim/vmath"
)

// EntityID uniquely identifies an entity within a World.
// IDs are monotonically increasing and never reused in a session.
type EntityID uint64

// RocketStatus tracks a rocket's lifecycle state
type RocketStatus uint8

const (
	RocketFlying RocketStatus = iota
	RocketLanded
	RocketDestroyed
)

// SatelliteStatus reflects remaining fuel, derived each tick
type SatelliteStatus uint8

const (
	SatelliteActive SatelliteStatus = iota
	SatelliteLowFuel
	SatelliteCritical
	SatelliteDestroyed
)

const (
	lowFuelFraction      = 0.25
	criticalFuelFraction = 0.1
)

// Planet is a gravitating body. Pinned planets never gain velocity
// from gravity but still exert it on others.
type Planet struct {
	ID     EntityID
	Pos    vmath.Vec2
	Vel    vmath.Vec2
	Mass   float64
	Radius float64
	Pinned bool
	Name   string
}

// Rocket is a player-controlled vehicle. Total mass is dry mass
// plus remaining fuel.
type Rocket struct {
	ID          EntityID
	Pos         vmath.Vec2
	Vel         vmath.Vec2
	Rotation    float64 // radians, thrust direction from +X axis
	DryMass     float64
	Fuel        float64
	MaxFuel     float64
	ThrustLevel float64 // 0.0 to 1.0
	Status      RocketStatus
	LandedOn    EntityID // planet id while Status == RocketLanded
	Owner       uint32   // owning client id, 0 for host-local rockets
}

// Satellite is an autonomous fuel relay converted from a rocket.
// Target references its orbital parent planet by id only.
type Satellite struct {
	ID      EntityID
	Pos     vmath.Vec2
	Vel     vmath.Vec2
	Target  EntityID
	DryMass float64
	Fuel    float64
	MaxFuel float64
	Status  SatelliteStatus
}

// Mass returns dry mass plus remaining fuel
func (r *Rocket) Mass() float64 {
	return r.DryMass + r.Fuel
}

// Mass returns dry mass plus remaining fuel
func (s *Satellite) Mass() float64 {
	return s.DryMass + s.Fuel
}

// CanThrust reports whether the rocket has fuel left
func (r *Rocket) CanThrust() bool {
	return r.Fuel > 0
}

// FuelFraction returns remaining fuel as a fraction of capacity
func (s *Satellite) FuelFraction() float64 {
	if s.MaxFuel <= 0 {
		return 0
	}
	return s.Fuel / s.MaxFuel
}

// NewPlanet validates parameters and returns an unregistered planet.
// Non-finite or non-positive mass and radius are a config error.
func NewPlanet(pos, vel vmath.Vec2, mass, radius float64, pinned bool, name string) (*Planet, error) {
	if !finitePositive(mass) {
		return nil, fmt.Errorf("%w: planet mass must be finite and positive, got %v", config.ErrConfig, mass)
	}
	if !finitePositive(radius) {
		return nil, fmt.Errorf("%w: planet radius must be finite and positive, got %v", config.ErrConfig, radius)
	}
	if !pos.IsFinite() || !vel.IsFinite() {
		return nil, fmt.Errorf("%w: planet position and velocity must be finite", config.ErrConfig)
	}
	return &Planet{Pos: pos, Vel: vel, Mass: mass, Radius: radius, Pinned: pinned, Name: name}, nil
}

// NewRocket validates parameters and returns an unregistered rocket
// with empty throttle.
func NewRocket(cfg config.Sim, pos, vel vmath.Vec2, rotation float64) (*Rocket, error) {
	if !pos.IsFinite() || !vel.IsFinite() {
		return nil, fmt.Errorf("%w: rocket position and velocity must be finite", config.ErrConfig)
	}
	if math.IsNaN(rotation) || math.IsInf(rotation, 0) {
		return nil, fmt.Errorf("%w: rocket rotation must be finite", config.ErrConfig)
	}
	return &Rocket{
		Pos:      pos,
		Vel:      vel,
		Rotation: rotation,
		DryMass:  cfg.RocketDryMass,
		Fuel:     cfg.RocketMaxFuel,
		MaxFuel:  cfg.RocketMaxFuel,
	}, nil
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

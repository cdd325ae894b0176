package sim

import (
	"sort"

	"flysim/config"
	"flysim/vmath"
)

// World exclusively owns all simulated entities. It is not
// goroutine-safe; the host guards it with its own lock and clients
// only hold shadow copies built from snapshots.
type World struct {
	cfg config.Sim

	nextID     EntityID
	planets    map[EntityID]*Planet
	rockets    map[EntityID]*Rocket
	satellites map[EntityID]*Satellite
}

// NewWorld creates an empty world with the given physics tuning.
func NewWorld(cfg config.Sim) *World {
	return &World{
		cfg:        cfg,
		planets:    make(map[EntityID]*Planet),
		rockets:    make(map[EntityID]*Rocket),
		satellites: make(map[EntityID]*Satellite),
	}
}

func (w *World) allocID() EntityID {
	w.nextID++
	return w.nextID
}

// AddPlanet registers a planet and returns its fresh id.
func (w *World) AddPlanet(p *Planet) EntityID {
	p.ID = w.allocID()
	w.planets[p.ID] = p
	return p.ID
}

// AddRocket registers a rocket and returns its fresh id.
func (w *World) AddRocket(r *Rocket) EntityID {
	r.ID = w.allocID()
	w.rockets[r.ID] = r
	return r.ID
}

// AddSatellite registers a satellite and returns its fresh id.
func (w *World) AddSatellite(s *Satellite) EntityID {
	s.ID = w.allocID()
	w.satellites[s.ID] = s
	return s.ID
}

// Planet resolves a planet id. Callers must tolerate absence: an
// entity may have been destroyed earlier the same tick.
func (w *World) Planet(id EntityID) (*Planet, bool) {
	p, ok := w.planets[id]
	return p, ok
}

// Rocket resolves a rocket id, absent for unknown ids.
func (w *World) Rocket(id EntityID) (*Rocket, bool) {
	r, ok := w.rockets[id]
	return r, ok
}

// Satellite resolves a satellite id, absent for unknown ids.
func (w *World) Satellite(id EntityID) (*Satellite, bool) {
	s, ok := w.satellites[id]
	return s, ok
}

// Remove deletes an entity of any kind. Returns false for unknown ids.
func (w *World) Remove(id EntityID) bool {
	if _, ok := w.planets[id]; ok {
		delete(w.planets, id)
		return true
	}
	if _, ok := w.rockets[id]; ok {
		delete(w.rockets, id)
		return true
	}
	if _, ok := w.satellites[id]; ok {
		delete(w.satellites, id)
		return true
	}
	return false
}

// Planets returns all planets in ascending id order.
func (w *World) Planets() []*Planet {
	out := make([]*Planet, 0, len(w.planets))
	for _, id := range w.planetIDs() {
		out = append(out, w.planets[id])
	}
	return out
}

// Rockets returns all rockets in ascending id order.
func (w *World) Rockets() []*Rocket {
	out := make([]*Rocket, 0, len(w.rockets))
	for _, id := range w.rocketIDs() {
		out = append(out, w.rockets[id])
	}
	return out
}

// Satellites returns all satellites in ascending id order.
func (w *World) Satellites() []*Satellite {
	out := make([]*Satellite, 0, len(w.satellites))
	for _, id := range w.satelliteIDs() {
		out = append(out, w.satellites[id])
	}
	return out
}

func (w *World) PlanetCount() int    { return len(w.planets) }
func (w *World) RocketCount() int    { return len(w.rockets) }
func (w *World) SatelliteCount() int { return len(w.satellites) }

// Iteration and pairwise physics run in id order so that identical
// worlds step identically.
func (w *World) planetIDs() []EntityID {
	return sortedIDs(w.planets)
}

func (w *World) rocketIDs() []EntityID {
	return sortedIDs(w.rockets)
}

func (w *World) satelliteIDs() []EntityID {
	return sortedIDs(w.satellites)
}

func sortedIDs[T any](m map[EntityID]*T) []EntityID {
	ids := make([]EntityID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SpawnRocketAt creates a fully fueled rocket at the given state.
// Invalid parameters are rejected before any id is allocated.
func (w *World) SpawnRocketAt(pos, vel vmath.Vec2, rotation float64) (EntityID, error) {
	r, err := NewRocket(w.cfg, pos, vel, rotation)
	if err != nil {
		return 0, err
	}
	return w.AddRocket(r), nil
}

// SetRocketThrust sets throttle clamped to [0,1]. Unknown ids are a no-op.
func (w *World) SetRocketThrust(id EntityID, level float64) {
	r, ok := w.rockets[id]
	if !ok {
		return
	}
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	r.ThrustLevel = level
}

// RotateRocket applies a rotation delta in radians. Unknown ids are a no-op.
func (w *World) RotateRocket(id EntityID, delta float64) {
	r, ok := w.rockets[id]
	if !ok {
		return
	}
	r.Rotation += delta
}

// ConvertRocketToSatellite atomically replaces a rocket with a new
// satellite: the rocket id stops resolving and a fresh id is created,
// never reused. The satellite keeps the rocket's position and velocity,
// retains a fraction of its fuel and dry mass, and targets the nearest
// planet. Returns false for unknown or destroyed rockets.
func (w *World) ConvertRocketToSatellite(id EntityID) (EntityID, bool) {
	r, ok := w.rockets[id]
	if !ok || r.Status == RocketDestroyed {
		return 0, false
	}

	fuel := r.Fuel * w.cfg.ConversionFuelRetention
	if fuel > w.cfg.SatelliteMaxFuel {
		fuel = w.cfg.SatelliteMaxFuel
	}

	s := &Satellite{
		Pos:     r.Pos,
		Vel:     r.Vel,
		Target:  w.nearestPlanet(r.Pos),
		DryMass: r.DryMass * w.cfg.ConversionMassRetention,
		Fuel:    fuel,
		MaxFuel: w.cfg.SatelliteMaxFuel,
	}

	delete(w.rockets, id)
	return w.AddSatellite(s), true
}

// nearestPlanet returns the id of the closest planet, 0 when none exist.
func (w *World) nearestPlanet(pos vmath.Vec2) EntityID {
	var best EntityID
	bestDist := -1.0
	for _, id := range w.planetIDs() {
		d := w.planets[id].Pos.Distance(pos)
		if bestDist < 0 || d < bestDist {
			best = id
			bestDist = d
		}
	}
	return best
}

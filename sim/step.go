package sim

import (
	"math"

	"flysim/orbit"
	"flysim/vmath"
)

// Update advances the world by dt seconds. Phases run in fixed order:
// planet-planet gravity, gravity on rockets and satellites, thrust and
// fuel burn, satellite station-keeping, integration, fuel collection,
// fuel transfers, collision and landing, and finally the purge of
// destroyed entities. Gravity runs on pre-thrust velocities and
// pre-integration positions so this tick's thrust is never
// double-counted, and purge runs last so earlier phases may still
// resolve soon-to-be-removed ids.
// Update never fails; invalid parameters are rejected at construction.
func (w *World) Update(dt float64) {
	w.planetPairGravity(dt)
	w.bodyGravity(dt)
	w.thrustPhase(dt)
	w.maintainOrbits(dt)
	w.integrate(dt)
	w.collectFuel(dt)
	w.resolveTransfers(dt)
	w.detectCollisions()
	w.purge()
}

// bodyGravity applies planet gravity to rockets and satellites, plus
// the optional rocket-to-rocket phase.
func (w *World) bodyGravity(dt float64) {
	for _, id := range w.rocketIDs() {
		r := w.rockets[id]
		if r.Status != RocketFlying {
			continue
		}
		w.applyPlanetGravity(r.Pos, &r.Vel, 0, dt)
	}
	for _, id := range w.satelliteIDs() {
		s := w.satellites[id]
		if s.Status == SatelliteDestroyed {
			continue
		}
		w.applyPlanetGravity(s.Pos, &s.Vel, 0, dt)
	}
	if w.cfg.RocketGravity {
		w.rocketPairGravity(dt)
	}
}

// thrustPhase applies engine acceleration and burns fuel. A landed
// rocket that throttles up takes off; the landing check's approach
// test keeps it from re-landing on the same pass.
func (w *World) thrustPhase(dt float64) {
	for _, id := range w.rocketIDs() {
		r := w.rockets[id]
		if r.Status == RocketDestroyed {
			continue
		}
		if r.ThrustLevel < w.cfg.ThrustThreshold || !r.CanThrust() {
			continue
		}

		if r.Status == RocketLanded {
			r.Status = RocketFlying
			if p, ok := w.planets[r.LandedOn]; ok {
				r.Vel = p.Vel
			}
			r.LandedOn = 0
		}

		dir := vmath.V(math.Cos(r.Rotation), math.Sin(r.Rotation))
		accel := w.cfg.ThrustPower * r.ThrustLevel / r.Mass()
		r.Vel = r.Vel.Add(dir.Scale(accel * dt))

		burn := (w.cfg.FuelBurnBase + r.ThrustLevel*w.cfg.FuelBurnMultiple) * dt
		r.Fuel -= burn
		if r.Fuel < 0 {
			r.Fuel = 0
		}
	}
}

// maintainOrbits nudges each satellite toward the circular orbit
// around its target planet, spending fuel in proportion to the applied
// correction. This burn is what eventually exhausts a satellite that
// cannot collect; one with no resolvable target or an empty tank
// drifts ballistically.
func (w *World) maintainOrbits(dt float64) {
	for _, sid := range w.satelliteIDs() {
		s := w.satellites[sid]
		if s.Status == SatelliteDestroyed || s.Fuel <= 0 {
			continue
		}
		p, ok := w.planets[s.Target]
		if !ok {
			continue
		}

		radial := s.Pos.Sub(p.Pos)
		r := radial.Length()
		if r == 0 {
			continue
		}

		// Desired state: circular orbit at the current radius, keeping
		// the satellite's present direction of travel.
		tangent := radial.Perpendicular().Normalize()
		rel := s.Vel.Sub(p.Vel)
		if rel.Dot(tangent) < 0 {
			tangent = tangent.Scale(-1)
		}
		correction := tangent.Scale(orbit.OrbitalVelocity(w.cfg.G, p.Mass, r)).Sub(rel)

		need := correction.Length()
		if need < w.cfg.MaintenanceDeadband {
			continue
		}

		dv := w.cfg.MaintenanceThrust * dt
		if dv > need {
			dv = need
		}
		drained := false
		if affordable := s.Fuel / w.cfg.MaintenanceBurnRate; dv >= affordable {
			dv = affordable
			drained = true
		}
		if dv <= 0 {
			continue
		}

		s.Vel = s.Vel.Add(correction.Normalize().Scale(dv))
		if drained {
			s.Fuel = 0 // spend the last drops exactly, no residue
		} else {
			s.Fuel -= dv * w.cfg.MaintenanceBurnRate
		}
	}
}

// integrate advances positions for all mobile entities. Landed rockets
// ride their planet instead of integrating freely.
func (w *World) integrate(dt float64) {
	for _, id := range w.planetIDs() {
		p := w.planets[id]
		if p.Pinned {
			continue
		}
		p.Pos = p.Pos.Add(p.Vel.Scale(dt))
	}
	for _, id := range w.rocketIDs() {
		r := w.rockets[id]
		switch r.Status {
		case RocketFlying:
			r.Pos = r.Pos.Add(r.Vel.Scale(dt))
		case RocketLanded:
			if p, ok := w.planets[r.LandedOn]; ok {
				r.Pos = r.Pos.Add(p.Vel.Scale(dt))
				r.Vel = p.Vel
			}
		}
	}
	for _, id := range w.satelliteIDs() {
		s := w.satellites[id]
		if s.Status == SatelliteDestroyed {
			continue
		}
		s.Pos = s.Pos.Add(s.Vel.Scale(dt))
	}
}

// collectFuel refills satellites near sufficiently massive planets,
// bounded by tank capacity.
func (w *World) collectFuel(dt float64) {
	for _, sid := range w.satelliteIDs() {
		s := w.satellites[sid]
		if s.Status == SatelliteDestroyed || s.Fuel >= s.MaxFuel {
			continue
		}
		for _, pid := range w.planetIDs() {
			p := w.planets[pid]
			if p.Mass < w.cfg.MinCollectionMass {
				continue
			}
			if s.Pos.Distance(p.Pos) > p.Radius+w.cfg.CollectionRange {
				continue
			}
			s.Fuel += w.cfg.CollectionRate * dt
			if s.Fuel > s.MaxFuel {
				s.Fuel = s.MaxFuel
			}
			break
		}
	}
}

// resolveTransfers moves fuel from satellites to in-range rockets.
// Links are resolved through ids each tick, never stored as structural
// references, and each satellite serves a bounded number of rockets.
func (w *World) resolveTransfers(dt float64) {
	for _, sid := range w.satelliteIDs() {
		s := w.satellites[sid]
		if s.Status == SatelliteDestroyed || s.Fuel <= 0 {
			continue
		}
		transfers := 0
		for _, rid := range w.rocketIDs() {
			if transfers >= w.cfg.MaxTransfers || s.Fuel <= 0 {
				break
			}
			r := w.rockets[rid]
			if r.Status == RocketDestroyed || r.Fuel >= r.MaxFuel {
				continue
			}
			if s.Pos.Distance(r.Pos) > w.cfg.TransferRange {
				continue
			}
			amount := w.cfg.TransferRate * dt
			if amount > s.Fuel {
				amount = s.Fuel
			}
			if deficit := r.MaxFuel - r.Fuel; amount > deficit {
				amount = deficit
			}
			s.Fuel -= amount
			r.Fuel += amount
			transfers++
		}
	}
}

// detectCollisions lands rockets on planets they approach and destroys
// satellites that hit a surface. A rocket only lands while moving
// toward the planet or nearly stationary, so a fresh takeoff does not
// immediately re-land.
func (w *World) detectCollisions() {
	for _, rid := range w.rocketIDs() {
		r := w.rockets[rid]
		if r.Status != RocketFlying {
			continue
		}
		for _, pid := range w.planetIDs() {
			p := w.planets[pid]
			if r.Pos.Distance(p.Pos) >= p.Radius+w.cfg.RocketRadius {
				continue
			}
			rel := r.Vel.Sub(p.Vel)
			toward := rel.Dot(p.Pos.Sub(r.Pos).Normalize())
			if toward > 0 || math.Abs(toward) < 0.01 {
				normal := r.Pos.Sub(p.Pos).Normalize()
				r.Pos = p.Pos.Add(normal.Scale(p.Radius))
				r.Vel = p.Vel
				r.Status = RocketLanded
				r.LandedOn = pid
				break
			}
		}
	}

	for _, sid := range w.satelliteIDs() {
		s := w.satellites[sid]
		if s.Status == SatelliteDestroyed {
			continue
		}
		for _, pid := range w.planetIDs() {
			p := w.planets[pid]
			if s.Pos.Distance(p.Pos) < p.Radius+w.cfg.SatelliteRadius {
				s.Status = SatelliteDestroyed
				break
			}
		}
	}
}

// purge removes destroyed entities and refreshes satellite fuel
// status. Runs last: an id simply stops resolving, never dangles.
func (w *World) purge() {
	for id, r := range w.rockets {
		if r.Status == RocketDestroyed {
			delete(w.rockets, id)
		}
	}
	for id, s := range w.satellites {
		if s.Fuel <= 0 {
			s.Status = SatelliteDestroyed
		}
		if s.Status == SatelliteDestroyed {
			delete(w.satellites, id)
			continue
		}
		switch f := s.FuelFraction(); {
		case f < criticalFuelFraction:
			s.Status = SatelliteCritical
		case f < lowFuelFraction:
			s.Status = SatelliteLowFuel
		default:
			s.Status = SatelliteActive
		}
	}
}

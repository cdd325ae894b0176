package sim

import "flysim/vmath"

// gravityAccel returns the acceleration induced on a body at pos by
// an attractor of the given mass. F = G·mA·mB / r², a = F/m, so the
// attracted body's own mass cancels. Separations with r² below the
// configured epsilon exert zero force to prevent singularities.
func (w *World) gravityAccel(pos, attractorPos vmath.Vec2, attractorMass float64) vmath.Vec2 {
	delta := attractorPos.Sub(pos)
	distSq := delta.LengthSq()
	if distSq < w.cfg.GravityEpsilon {
		return vmath.Vec2{}
	}
	mag := w.cfg.G * attractorMass / distSq
	return delta.Normalize().Scale(mag)
}

// applyPlanetGravity accumulates planet gravity into vel over dt,
// skipping the attractor itself when self is its id.
func (w *World) applyPlanetGravity(pos vmath.Vec2, vel *vmath.Vec2, self EntityID, dt float64) {
	for _, id := range w.planetIDs() {
		if id == self {
			continue
		}
		p := w.planets[id]
		*vel = vel.Add(w.gravityAccel(pos, p.Pos, p.Mass).Scale(dt))
	}
}

// planetPairGravity applies mutual gravity between all planet pairs.
// Pinned-pinned pairs are skipped entirely; a pinned planet still
// exerts gravity but never changes velocity.
func (w *World) planetPairGravity(dt float64) {
	ids := w.planetIDs()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := w.planets[ids[i]], w.planets[ids[j]]
			if a.Pinned && b.Pinned {
				continue
			}
			if !a.Pinned {
				a.Vel = a.Vel.Add(w.gravityAccel(a.Pos, b.Pos, b.Mass).Scale(dt))
			}
			if !b.Pinned {
				b.Vel = b.Vel.Add(w.gravityAccel(b.Pos, a.Pos, a.Mass).Scale(dt))
			}
		}
	}
}

// rocketPairGravity applies mutual gravity between rocket pairs.
// Optional phase, enabled by config.
func (w *World) rocketPairGravity(dt float64) {
	ids := w.rocketIDs()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := w.rockets[ids[i]], w.rockets[ids[j]]
			if a.Status != RocketFlying || b.Status != RocketFlying {
				continue
			}
			a.Vel = a.Vel.Add(w.gravityAccel(a.Pos, b.Pos, b.Mass()).Scale(dt))
			b.Vel = b.Vel.Add(w.gravityAccel(b.Pos, a.Pos, a.Mass()).Scale(dt))
		}
	}
}

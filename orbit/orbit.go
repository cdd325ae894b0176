// Package orbit provides pure derived-quantity queries over body
// state. All functions are side-effect-free and safe to call at any
// time under the caller's read discipline.
package orbit

import (
	"math"

	"flysim/vmath"
)

// OrbitalVelocity returns the speed of a circular orbit of radius r
// around a mass m: v = sqrt(G·M/r). Zero for non-positive radius.
func OrbitalVelocity(g, mass, r float64) float64 {
	if r <= 0 {
		return 0
	}
	return math.Sqrt(g * mass / r)
}

// EscapeVelocity returns the minimum speed to unbind from a mass m at
// distance r: v = sqrt(2·G·M/r). Zero for non-positive radius.
func EscapeVelocity(g, mass, r float64) float64 {
	if r <= 0 {
		return 0
	}
	return math.Sqrt(2 * g * mass / r)
}

// InsertionVelocity returns the velocity vector for circular orbit
// insertion at pos around a body at center, tangent to the radius.
// Clockwise flips the orbit direction.
func InsertionVelocity(g, mass float64, center, pos vmath.Vec2, clockwise bool) vmath.Vec2 {
	radial := pos.Sub(center)
	r := radial.Length()
	if r == 0 {
		return vmath.Vec2{}
	}
	speed := OrbitalVelocity(g, mass, r)
	tangent := radial.Perpendicular().Normalize()
	if clockwise {
		tangent = tangent.Scale(-1)
	}
	return tangent.Scale(speed)
}

// Apsides holds the extreme distances of a bound orbit.
type Apsides struct {
	Apoapsis  float64
	Periapsis float64
}

// ComputeApsides derives apoapsis and periapsis from specific orbital
// energy and angular momentum of a body at pos/vel relative to an
// attractor of the given mass at center. Returns false for a
// hyperbolic or parabolic orbit (energy >= 0) rather than a
// meaningless number.
func ComputeApsides(g, mass float64, center, centerVel, pos, vel vmath.Vec2) (Apsides, bool) {
	mu := g * mass
	rel := pos.Sub(center)
	relVel := vel.Sub(centerVel)

	r := rel.Length()
	if r == 0 || mu <= 0 {
		return Apsides{}, false
	}

	// Specific orbital energy: ε = v²/2 − μ/r
	energy := relVel.LengthSq()/2 - mu/r
	if energy >= 0 {
		return Apsides{}, false
	}

	// Semi-major axis a = −μ/2ε, eccentricity from specific angular
	// momentum h: e = sqrt(1 + 2εh²/μ²)
	a := -mu / (2 * energy)
	h := rel.Cross(relVel)
	eccSq := 1 + 2*energy*h*h/(mu*mu)
	if eccSq < 0 {
		eccSq = 0 // numeric noise on near-circular orbits
	}
	ecc := math.Sqrt(eccSq)

	return Apsides{
		Apoapsis:  a * (1 + ecc),
		Periapsis: a * (1 - ecc),
	}, true
}

package sim

import (
	"math"
	"testing"

	"flysim/config"
	"flysim/orbit"
	"flysim/vmath"
)

const dt = 1.0 / 30.0

func addPlanet(t *testing.T, w *World, pos, vel vmath.Vec2, mass, radius float64, pinned bool) *Planet {
	t.Helper()
	p, err := NewPlanet(pos, vel, mass, radius, pinned, "")
	if err != nil {
		t.Fatalf("planet: %v", err)
	}
	w.AddPlanet(p)
	return p
}

func totalMomentum(w *World) vmath.Vec2 {
	var total vmath.Vec2
	for _, p := range w.Planets() {
		total = total.Add(p.Vel.Scale(p.Mass))
	}
	for _, r := range w.Rockets() {
		total = total.Add(r.Vel.Scale(r.Mass()))
	}
	return total
}

func TestMomentumConservedWithoutThrust(t *testing.T) {
	w := testWorld()
	addPlanet(t, w, vmath.V(0, 0), vmath.V(3, -1), 50000, 10, false)
	addPlanet(t, w, vmath.V(4000, 0), vmath.V(-2, 5), 30000, 10, false)
	addPlanet(t, w, vmath.V(0, 4000), vmath.V(0, 2), 20000, 10, false)

	before := totalMomentum(w)
	for i := 0; i < 500; i++ {
		w.Update(dt)
	}
	after := totalMomentum(w)

	scale := before.Length()
	if scale == 0 {
		scale = 1
	}
	if drift := after.Sub(before).Length() / scale; drift > 1e-9 {
		t.Fatalf("momentum drifted by relative %.3e", drift)
	}
}

func TestCircularOrbitStaysInBand(t *testing.T) {
	cfg := config.Default().Sim
	w := NewWorld(cfg)

	const mass = 1e6
	const r = 1000.0
	addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, mass, 100, true)

	pos := vmath.V(r, 0)
	vel := orbit.InsertionVelocity(cfg.G, mass, vmath.Vec2{}, pos, false)
	id, err := w.SpawnRocketAt(pos, vel, 0)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	for i := 0; i < 1000; i++ {
		w.Update(dt)
		rk, ok := w.Rocket(id)
		if !ok {
			t.Fatalf("rocket destroyed at tick %d", i)
		}
		dist := rk.Pos.Length()
		if dist < 0.9*r || dist > 1.1*r {
			t.Fatalf("tick %d: radius %.1f left the [%.0f, %.0f] band", i, dist, 0.9*r, 1.1*r)
		}
	}
}

func TestPinnedPlanetNeverMovesButStillAttracts(t *testing.T) {
	w := testWorld()
	anchor := addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 1e8, 50, true)
	moon := addPlanet(t, w, vmath.V(10000, 0), vmath.Vec2{}, 1e4, 10, false)

	for i := 0; i < 30; i++ {
		w.Update(dt)
	}

	if anchor.Vel != (vmath.Vec2{}) || anchor.Pos != (vmath.Vec2{}) {
		t.Fatalf("pinned planet moved: pos %v vel %v", anchor.Pos, anchor.Vel)
	}
	if moon.Vel.X >= 0 {
		t.Fatalf("unpinned planet should accelerate toward anchor, vel.X = %v", moon.Vel.X)
	}
}

func TestPinnedPairSkipped(t *testing.T) {
	w := testWorld()
	a := addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 1e8, 50, true)
	b := addPlanet(t, w, vmath.V(5000, 0), vmath.Vec2{}, 1e8, 50, true)

	w.Update(dt)

	if a.Vel != (vmath.Vec2{}) || b.Vel != (vmath.Vec2{}) {
		t.Fatal("pinned-pinned pair exchanged gravity")
	}
}

func TestGravityEpsilonPreventsSingularity(t *testing.T) {
	w := testWorld()
	addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 1e8, 50, false)
	p := addPlanet(t, w, vmath.V(1, 0), vmath.Vec2{}, 1e8, 50, false) // r² below epsilon

	w.Update(dt)

	if !p.Vel.IsFinite() {
		t.Fatal("near-zero separation produced a non-finite velocity")
	}
	if p.Vel != (vmath.Vec2{}) {
		t.Fatalf("force inside epsilon must be zero, got vel %v", p.Vel)
	}
}

func TestThrustConsumesFuelAndAccelerates(t *testing.T) {
	w := testWorld()
	id, _ := w.SpawnRocketAt(vmath.Vec2{}, vmath.Vec2{}, 0) // rotation 0 = +X
	w.SetRocketThrust(id, 1)

	r, _ := w.Rocket(id)
	startFuel := r.Fuel

	w.Update(dt)

	if r.Vel.X <= 0 {
		t.Fatalf("full throttle along +X left vel.X = %v", r.Vel.X)
	}
	wantBurn := (2.0 + 1.0*8.0) * dt
	if got := startFuel - r.Fuel; math.Abs(got-wantBurn) > 1e-9 {
		t.Fatalf("fuel burn: got %.5f want %.5f", got, wantBurn)
	}
}

func TestThrustBelowThresholdBurnsNothing(t *testing.T) {
	w := testWorld()
	id, _ := w.SpawnRocketAt(vmath.Vec2{}, vmath.Vec2{}, 0)
	w.SetRocketThrust(id, 0.05)

	r, _ := w.Rocket(id)
	startFuel := r.Fuel
	w.Update(dt)

	if r.Fuel != startFuel {
		t.Fatal("idle throttle should not burn fuel")
	}
	if r.Vel != (vmath.Vec2{}) {
		t.Fatal("idle throttle should not accelerate")
	}
}

func TestEmptyTankMeansNoThrust(t *testing.T) {
	w := testWorld()
	id, _ := w.SpawnRocketAt(vmath.Vec2{}, vmath.Vec2{}, 0)
	r, _ := w.Rocket(id)
	r.Fuel = 0
	w.SetRocketThrust(id, 1)

	w.Update(dt)

	if r.Vel != (vmath.Vec2{}) {
		t.Fatal("rocket accelerated on an empty tank")
	}
}

func TestRocketLandsWhenApproaching(t *testing.T) {
	w := testWorld()
	p := addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 100, 100, true) // tiny mass, negligible gravity
	id, _ := w.SpawnRocketAt(vmath.V(0, -108), vmath.V(0, 10), math.Pi/2)

	w.Update(dt)

	r, ok := w.Rocket(id)
	if !ok {
		t.Fatal("rocket purged instead of landed")
	}
	if r.Status != RocketLanded {
		t.Fatalf("expected landed, got status %d", r.Status)
	}
	if r.LandedOn != p.ID {
		t.Fatalf("landed on %d, want %d", r.LandedOn, p.ID)
	}
	if got := r.Pos.Distance(p.Pos); math.Abs(got-p.Radius) > 1e-6 {
		t.Fatalf("not snapped to surface: distance %.3f, radius %.0f", got, p.Radius)
	}
}

func TestLandedRocketTakesOffUnderThrust(t *testing.T) {
	w := testWorld()
	addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 100, 100, true)
	id, _ := w.SpawnRocketAt(vmath.V(0, -108), vmath.V(0, 10), -math.Pi/2) // engine pointing up

	w.Update(dt)
	r, _ := w.Rocket(id)
	if r.Status != RocketLanded {
		t.Fatalf("precondition failed: rocket not landed (status %d)", r.Status)
	}

	w.SetRocketThrust(id, 1)
	w.Update(dt)

	if r.Status != RocketFlying {
		t.Fatalf("throttled rocket still landed (status %d)", r.Status)
	}
	if r.Vel.Y >= 0 {
		t.Fatalf("takeoff thrust should push away from the planet, vel.Y = %v", r.Vel.Y)
	}
}

func TestSatelliteDestroyedOnImpact(t *testing.T) {
	w := testWorld()
	addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 100, 100, true)

	s := &Satellite{Pos: vmath.V(0, -104), Fuel: 40, MaxFuel: 80, DryMass: 0.8}
	id := w.AddSatellite(s)

	w.Update(dt)

	if _, ok := w.Satellite(id); ok {
		t.Fatal("satellite inside planet radius should be destroyed and purged")
	}
}

func TestSatelliteFuelCollectionBoundedByCapacity(t *testing.T) {
	cfg := config.Default().Sim
	w := NewWorld(cfg)
	addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 1000, 100, true)

	s := &Satellite{Pos: vmath.V(0, -150), Fuel: 79.9, MaxFuel: 80, DryMass: 0.8}
	// Orbit-speed sideways so it does not fall in during the test
	s.Vel = vmath.V(300, 0)
	id := w.AddSatellite(s)

	w.Update(dt)

	got, ok := w.Satellite(id)
	if !ok {
		t.Fatal("satellite lost during collection")
	}
	if got.Fuel > got.MaxFuel {
		t.Fatalf("collection exceeded capacity: %.3f > %.0f", got.Fuel, got.MaxFuel)
	}
	if got.Fuel <= 79.9 {
		t.Fatalf("no fuel collected near planet: %.3f", got.Fuel)
	}
}

func TestSatelliteTransfersFuelToRocketInRange(t *testing.T) {
	cfg := config.Default().Sim
	w := NewWorld(cfg)

	s := &Satellite{Pos: vmath.Vec2{}, Fuel: 60, MaxFuel: 80, DryMass: 0.8}
	w.AddSatellite(s)

	rid, _ := w.SpawnRocketAt(vmath.V(500, 0), vmath.Vec2{}, 0)
	r, _ := w.Rocket(rid)
	r.Fuel = 10

	w.Update(dt)

	wantMoved := cfg.TransferRate * dt
	if math.Abs((10+wantMoved)-r.Fuel) > 1e-9 {
		t.Fatalf("rocket fuel after transfer: got %.5f want %.5f", r.Fuel, 10+wantMoved)
	}
	if math.Abs((60-wantMoved)-s.Fuel) > 1e-9 {
		t.Fatalf("satellite fuel after transfer: got %.5f want %.5f", s.Fuel, 60-wantMoved)
	}
}

func TestTransferCapLimitsSimultaneousRockets(t *testing.T) {
	cfg := config.Default().Sim
	cfg.MaxTransfers = 2
	w := NewWorld(cfg)

	s := &Satellite{Pos: vmath.Vec2{}, Fuel: 60, MaxFuel: 80, DryMass: 0.8}
	w.AddSatellite(s)

	var rockets []*Rocket
	for i := 0; i < 4; i++ {
		id, _ := w.SpawnRocketAt(vmath.V(float64(100+i), 0), vmath.Vec2{}, 0)
		r, _ := w.Rocket(id)
		r.Fuel = 0
		rockets = append(rockets, r)
	}

	w.Update(dt)

	fed := 0
	for _, r := range rockets {
		if r.Fuel > 0 {
			fed++
		}
	}
	if fed != 2 {
		t.Fatalf("transfer cap 2 served %d rockets", fed)
	}
}

func TestStationKeepingBurnsFuelTowardTargetOrbit(t *testing.T) {
	cfg := config.Default().Sim
	w := NewWorld(cfg)
	p := addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 1e6, 100, true)

	// Dead stop at altitude: far off the circular orbit, well past the
	// deadband, and outside collection range so only maintenance
	// touches the tank.
	s := &Satellite{Pos: vmath.V(1000, 0), Fuel: 40, MaxFuel: 80, DryMass: 0.8, Target: p.ID}
	w.AddSatellite(s)

	startErr := orbit.OrbitalVelocity(cfg.G, 1e6, 1000)
	w.Update(dt)

	wantBurn := cfg.MaintenanceThrust * dt * cfg.MaintenanceBurnRate
	if got := 40 - s.Fuel; math.Abs(got-wantBurn) > 1e-9 {
		t.Fatalf("maintenance burn: got %.5f want %.5f", got, wantBurn)
	}

	tangent := s.Pos.Sub(p.Pos).Perpendicular().Normalize()
	rel := s.Vel.Sub(p.Vel)
	if rel.Dot(tangent) < 0 {
		tangent = tangent.Scale(-1)
	}
	want := tangent.Scale(orbit.OrbitalVelocity(cfg.G, 1e6, s.Pos.Distance(p.Pos)))
	if endErr := want.Sub(rel).Length(); endErr >= startErr {
		t.Fatalf("correction did not move toward the circular orbit: error %.2f, started at %.2f", endErr, startErr)
	}
}

func TestSatelliteWithoutTargetDriftsFree(t *testing.T) {
	w := testWorld()
	s := &Satellite{Pos: vmath.V(1e6, 0), Fuel: 40, MaxFuel: 80, DryMass: 0.8}
	w.AddSatellite(s)

	w.Update(dt)

	if s.Fuel != 40 {
		t.Fatalf("untargeted satellite burned fuel: %.5f", s.Fuel)
	}
	if s.Vel != (vmath.Vec2{}) {
		t.Fatalf("untargeted satellite accelerated: %v", s.Vel)
	}
}

func TestStationKeepingStopsAtEmptyTank(t *testing.T) {
	cfg := config.Default().Sim
	w := NewWorld(cfg)
	p := addPlanet(t, w, vmath.Vec2{}, vmath.Vec2{}, 1e6, 100, true)

	// Less fuel than one full-rate correction costs
	tiny := cfg.MaintenanceThrust * dt * cfg.MaintenanceBurnRate / 4
	s := &Satellite{Pos: vmath.V(1000, 0), Fuel: tiny, MaxFuel: 80, DryMass: 0.8, Target: p.ID}
	id := w.AddSatellite(s)

	w.Update(dt)

	// The last drops were spent and the exhausted satellite purged
	if _, ok := w.Satellite(id); ok {
		t.Fatalf("satellite survived with %.6f fuel after maintenance", s.Fuel)
	}
}

func TestDepletedSatellitePurged(t *testing.T) {
	w := testWorld()
	s := &Satellite{Pos: vmath.V(1e6, 0), Fuel: 0, MaxFuel: 80, DryMass: 0.8}
	id := w.AddSatellite(s)

	w.Update(dt)

	if _, ok := w.Satellite(id); ok {
		t.Fatal("satellite with exhausted fuel should be destroyed")
	}
}

func TestSatelliteStatusTracksFuel(t *testing.T) {
	w := testWorld()
	cases := []struct {
		fuel float64
		want SatelliteStatus
	}{
		{70, SatelliteActive},
		{15, SatelliteLowFuel},
		{5, SatelliteCritical},
	}
	for _, tc := range cases {
		s := &Satellite{Pos: vmath.V(1e6, 0), Fuel: tc.fuel, MaxFuel: 80, DryMass: 0.8}
		id := w.AddSatellite(s)
		w.Update(dt)
		got, ok := w.Satellite(id)
		if !ok {
			t.Fatalf("satellite with %.0f fuel purged", tc.fuel)
		}
		if got.Status != tc.want {
			t.Fatalf("fuel %.0f: status %d, want %d", tc.fuel, got.Status, tc.want)
		}
	}
}

func TestRocketGravityToggle(t *testing.T) {
	run := func(enabled bool) vmath.Vec2 {
		cfg := config.Default().Sim
		cfg.RocketGravity = enabled
		w := NewWorld(cfg)

		a, _ := w.SpawnRocketAt(vmath.Vec2{}, vmath.Vec2{}, 0)
		w.SpawnRocketAt(vmath.V(100, 0), vmath.Vec2{}, 0)
		w.Update(dt)
		r, _ := w.Rocket(a)
		return r.Vel
	}

	if v := run(false); v != (vmath.Vec2{}) {
		t.Fatalf("rocket gravity disabled but velocity changed: %v", v)
	}
	if v := run(true); v.X <= 0 {
		t.Fatalf("rocket gravity enabled but no attraction: %v", v)
	}
}

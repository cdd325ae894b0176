package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrConfig marks invalid configuration or entity parameters,
// rejected at construction time and never mid-tick.
var ErrConfig = errors.New("invalid config")

// Sim holds physics and gameplay tunables.
// Threaded explicitly through World construction so independent
// simulations can coexist.
type Sim struct {
	// Gravitational constant
	G float64

	// Separations with r² below this exert zero force
	GravityEpsilon float64

	// Rocket-to-rocket gravity phase toggle
	RocketGravity bool

	// Thrust acceleration at full throttle for a unit-mass rocket
	ThrustPower float64

	// Fuel consumption: Base + level*Multiplier per second while
	// level >= Threshold
	FuelBurnBase     float64
	FuelBurnMultiple float64
	ThrustThreshold  float64
	RocketMaxFuel    float64
	RocketDryMass    float64
	RocketRadius     float64
	SatelliteRadius  float64
	SatelliteMaxFuel float64
	SatelliteDryMass float64

	// Satellite station-keeping toward the target planet's circular
	// orbit: at most MaintenanceThrust of velocity correction per
	// second, burning MaintenanceBurnRate fuel per unit of correction.
	// Errors below the deadband are tolerated without burning.
	MaintenanceThrust   float64
	MaintenanceBurnRate float64
	MaintenanceDeadband float64

	// Satellite fuel collection near planets
	CollectionRange   float64
	CollectionRate    float64
	MinCollectionMass float64

	// Satellite-to-rocket fuel transfer
	TransferRange float64
	TransferRate  float64
	MaxTransfers  int

	// Rocket-to-satellite conversion
	ConversionFuelRetention float64
	ConversionMassRetention float64
}

// Net holds connection lifecycle and pacing tunables shared by
// host and client construction.
type Net struct {
	TickRate          int           // Host simulation ticks per second
	InputRate         int           // Client input sends per second
	HandshakeTimeout  time.Duration // Host waits this long for a Handshake
	ConnectTimeout    time.Duration // Client dial + handshake budget
	ClientTimeout     time.Duration // Host drops a silent client after this
	ServerTimeout     time.Duration // Client self-disconnects after this
	HeartbeatInterval time.Duration // Client heartbeat cadence
	MonitorInterval   time.Duration // Host heartbeat scan cadence

	MaxClients    int
	MaxFrameSize  uint32 // Frames above this are a protocol error
	SendQueueSize int    // Per-connection outbound queue, drops when full

	// Interpolation delay applied to remote entities
	InterpolationDelay time.Duration
	SnapshotBuffer     int // Buffered snapshots per client

	// Per-connection input rate limit (messages/sec, burst)
	InputLimit float64
	InputBurst int

	// Snapshot payloads at or above this size are LZ4-compressed
	CompressThreshold int
}

// Config is the full tunable surface for World, Host and Client.
type Config struct {
	Sim Sim
	Net Net
}

// Default returns the tuning the original maps were balanced for.
func Default() Config {
	return Config{
		Sim: Sim{
			G:                 100.0,
			GravityEpsilon:    400.0, // (20 units)²
			RocketGravity:     true,
			ThrustPower:       500.0,
			FuelBurnBase:      2.0,
			FuelBurnMultiple:  8.0,
			ThrustThreshold:   0.1,
			RocketMaxFuel:     100.0,
			RocketDryMass:     1.0,
			RocketRadius:      12.0,
			SatelliteRadius:   7.0,
			SatelliteMaxFuel:  80.0,
			SatelliteDryMass:  0.8,

			MaintenanceThrust:   10.0,
			MaintenanceBurnRate: 0.2,
			MaintenanceDeadband: 1.0,

			CollectionRange:   250.0,
			CollectionRate:    15.0,
			MinCollectionMass: 50.0,
			TransferRange:     2500.0,
			TransferRate:      25.0,
			MaxTransfers:      5,

			ConversionFuelRetention: 0.8,
			ConversionMassRetention: 0.9,
		},
		Net: Net{
			TickRate:           30,
			InputRate:          30,
			HandshakeTimeout:   5 * time.Second,
			ConnectTimeout:     5 * time.Second,
			ClientTimeout:      10 * time.Second,
			ServerTimeout:      15 * time.Second,
			HeartbeatInterval:  2 * time.Second,
			MonitorInterval:    time.Second,
			MaxClients:         16,
			MaxFrameSize:       1 << 20,
			SendQueueSize:      64,
			InterpolationDelay: 100 * time.Millisecond,
			SnapshotBuffer:     16,
			InputLimit:         120,
			InputBurst:         240,
			CompressThreshold:  512,
		},
	}
}

// Validate rejects non-finite or non-positive tunables.
func (c Config) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"sim.g", c.Sim.G},
		{"sim.gravity_epsilon", c.Sim.GravityEpsilon},
		{"sim.thrust_power", c.Sim.ThrustPower},
		{"sim.rocket_max_fuel", c.Sim.RocketMaxFuel},
		{"sim.rocket_dry_mass", c.Sim.RocketDryMass},
		{"sim.satellite_max_fuel", c.Sim.SatelliteMaxFuel},
		{"sim.satellite_dry_mass", c.Sim.SatelliteDryMass},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) || v.val <= 0 {
			return fmt.Errorf("%w: %s must be finite and positive, got %v", ErrConfig, v.name, v.val)
		}
	}
	if c.Net.TickRate <= 0 {
		return fmt.Errorf("%w: net.tick_rate must be positive, got %d", ErrConfig, c.Net.TickRate)
	}
	if c.Net.MaxFrameSize == 0 {
		return fmt.Errorf("%w: net.max_frame_size must be positive", ErrConfig)
	}
	if c.Net.SendQueueSize <= 0 {
		return fmt.Errorf("%w: net.send_queue_size must be positive", ErrConfig)
	}
	if c.Net.SnapshotBuffer < 2 {
		return fmt.Errorf("%w: net.snapshot_buffer must hold at least 2 snapshots", ErrConfig)
	}
	return nil
}

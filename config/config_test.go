package config

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero G", func(c *Config) { c.Sim.G = 0 }},
		{"negative G", func(c *Config) { c.Sim.G = -100 }},
		{"NaN epsilon", func(c *Config) { c.Sim.GravityEpsilon = math.NaN() }},
		{"infinite thrust", func(c *Config) { c.Sim.ThrustPower = math.Inf(1) }},
		{"zero max fuel", func(c *Config) { c.Sim.RocketMaxFuel = 0 }},
		{"zero tick rate", func(c *Config) { c.Net.TickRate = 0 }},
		{"zero max frame", func(c *Config) { c.Net.MaxFrameSize = 0 }},
		{"zero send queue", func(c *Config) { c.Net.SendQueueSize = 0 }},
		{"tiny snapshot buffer", func(c *Config) { c.Net.SnapshotBuffer = 1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
				t.Fatalf("want ErrConfig, got %v", err)
			}
		})
	}
}

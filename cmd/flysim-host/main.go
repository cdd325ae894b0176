package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flysim/config"
	"flysim/event"
	"flysim/host"
	"flysim/orbit"
	"flysim/sim"
	"flysim/vmath"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment")
	}

	bind := flag.String("bind", envStr("FLYSIM_BIND", ":7777"), "listen address")
	jsonLog := flag.Bool("log-json", envBool("FLYSIM_LOG_JSON", false), "JSON log output")
	flag.Parse()

	logger := newLogger(*jsonLog)
	slog.SetDefault(logger)

	cfg := config.Default()
	world := sim.NewWorld(cfg.Sim)
	if err := buildDefaultMap(world, cfg); err != nil {
		logger.Error("map construction failed", "error", err)
		os.Exit(1)
	}

	h, err := host.New(cfg, world, logger)
	if err != nil {
		logger.Error("host construction failed", "error", err)
		os.Exit(1)
	}

	if err := h.Start(*bind); err != nil {
		logger.Error("host startup failed", "error", err)
		os.Exit(1)
	}
	defer h.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-sig:
			logger.Info("shutting down")
			return
		case <-poll.C:
		}
		for _, ev := range h.Events() {
			switch ev.Type {
			case event.ClientConnected:
				logger.Info("player joined", "client", ev.Client, "name", ev.Name)
			case event.ClientDisconnected:
				logger.Info("player left", "client", ev.Client, "reason", ev.Reason.String())
			}
		}
	}
}

// buildDefaultMap places a pinned primary planet with a moon in
// circular orbit, matching the original default map proportions.
func buildDefaultMap(w *sim.World, cfg config.Config) error {
	const (
		primaryMass   = 198910000.0
		primaryRadius = 10000.0
		massRatio     = 0.06
		orbitDistance = 60000.0
	)

	center := vmath.V(400, 300)
	primary, err := sim.NewPlanet(center, vmath.Vec2{}, primaryMass, primaryRadius, true, "Terra")
	if err != nil {
		return err
	}
	w.AddPlanet(primary)

	moonPos := center.Add(vmath.V(orbitDistance, 0))
	moonVel := orbit.InsertionVelocity(cfg.Sim.G, primaryMass, center, moonPos, false)
	moon, err := sim.NewPlanet(moonPos, moonVel, primaryMass*massRatio, primaryRadius/60, false, "Luna")
	if err != nil {
		return err
	}
	w.AddPlanet(moon)

	return nil
}

func newLogger(jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flysim/client"
	"flysim/config"
	"flysim/event"
	"flysim/protocol"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment")
	}

	addr := flag.String("addr", envStr("FLYSIM_ADDR", "127.0.0.1:7777"), "host address")
	name := flag.String("name", envStr("FLYSIM_NAME", "pilot"), "player name")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	c, err := client.New(config.Default(), logger)
	if err != nil {
		logger.Error("client construction failed", "error", err)
		os.Exit(1)
	}

	if err := c.Connect(*addr, *name); err != nil {
		logger.Error("connect failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-sig:
			logger.Info("quitting")
			return
		case <-poll.C:
		}

		for _, ev := range c.Events() {
			switch ev.Type {
			case event.PlayerJoined:
				logger.Info("player joined", "client", ev.Client, "rocket", ev.Entity)
			case event.PlayerLeft:
				logger.Info("player left", "client", ev.Client)
			case event.Disconnected:
				logger.Info("disconnected", "reason", ev.Reason.String())
				return
			}
		}

		if own := findOwnRocket(c); own != nil {
			logger.Debug("rocket state",
				"tick", c.LastTick(),
				"x", own.PosX, "y", own.PosY,
				"fuel", own.Fuel,
			)
		}
	}
}

func findOwnRocket(c *client.Client) *protocol.EntityState {
	for _, e := range c.Entities() {
		if e.Kind == protocol.KindRocket && e.ID == c.RocketID() {
			return &e
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package main provides the relay server binary: the TCP control channel,
// the UDP data channel, and the liveness reaper under one lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/config"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/observability"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/relay"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("tcp_addr", cfg.Server.TCPAddr()),
		zap.String("udp_addr", cfg.Server.UDPAddr()),
	)

	engine := relay.New(cfg.Relay, logger)
	control := relay.NewControlServer(cfg.Server, cfg.Relay, engine, logger)
	data := relay.NewDataServer(cfg.Server.UDPAddr(), engine, logger)
	reaper := relay.NewReaper(engine, cfg.Relay.ReapInterval, cfg.Relay.HeartbeatTimeout, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("control", control)
	lifecycle.Add("data", data)
	lifecycle.Add("reaper", reaper)

	logger.Info("relay server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

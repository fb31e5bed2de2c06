// daltonize-server: HTTP and WebSocket service for color vision correction
// Accepts still images on /correct and real-time frame streams on /ws/stream
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-daltonize/internal/config"
	"github.com/teslashibe/go-daltonize/internal/log"
	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/frame"
	"github.com/teslashibe/go-daltonize/pkg/hub"
	"github.com/teslashibe/go-daltonize/pkg/metrics"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
	"github.com/teslashibe/go-daltonize/pkg/server"
	"github.com/teslashibe/go-daltonize/pkg/session"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "YAML config file (default $DALTONIZE_CONFIG)")
	port       = flag.String("port", "", "HTTP server port (overrides config and $PORT)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	log.Init(cfg.Log.Level)
	logger := log.L()
	server.Version = version

	if err := run(cfg, *debug); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *config.Config, debug bool) error {
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	still := recolor.NewStill(
		codec.New(
			codec.WithMaxPixels(cfg.Limits.MaxPixels),
			codec.WithMaxInputBytes(cfg.Limits.MaxFrameBytes),
			codec.WithQuality(cfg.Limits.JPEGQuality),
			codec.WithNative(cfg.Limits.NativeCodec),
		),
		frame.NewProcessor(frame.WithMaxPixels(cfg.Limits.MaxPixels)),
		logger,
	)
	registry := session.NewRegistry(still,
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithReapInterval(cfg.Session.ReapInterval),
		session.WithMaxFPS(cfg.Session.MaxFPS),
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithObserver(m),
		session.WithLogger(logger),
	)
	stats := hub.New("stats", logger)

	srv := server.New(still, registry, m, stats,
		server.WithDebug(debug),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithMaxFrameBytes(cfg.Limits.MaxFrameBytes),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		server.WithLogger(logger),
	)

	logger.Info("daltonize server starting",
		"version", version,
		"addr", cfg.Addr(),
		"native_codec", cfg.Limits.NativeCodec && codec.NativeAvailable(),
		"max_fps", cfg.Session.MaxFPS,
		"idle_timeout", cfg.Session.IdleTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Listen(cfg.Addr()) })
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return stats.Run(gctx) })
	g.Go(func() error { return stats.Feed(gctx, cfg.Server.StatsInterval, srv.StatsSource()) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

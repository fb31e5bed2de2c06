// Package server exposes the recoloring pipeline over HTTP and websockets.
//
// Routes:
//
//	GET  /                      usage
//	GET  /health                liveness and session counts
//	GET  /metrics               Prometheus metrics
//	POST /correct/:deficiency   recolor one uploaded image
//	     /api/sessions          inspect, re-parameterize and close sessions
//	GET  /ws/stream             real-time frame session
//	GET  /ws/stats              periodic registry statistics
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-daltonize/internal/log"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/hub"
	"github.com/teslashibe/go-daltonize/pkg/metrics"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
	"github.com/teslashibe/go-daltonize/pkg/session"
)

// Version is reported by /health.
var Version = "1.0.0"

// Config holds server configuration.
type Config struct {
	// AppName is the Fiber application name.
	AppName string

	// Debug enables request logging.
	Debug bool

	// CORSOrigins is the allowed origin list.
	CORSOrigins string

	// MaxFrameBytes bounds one encoded image, upload or websocket frame.
	MaxFrameBytes int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Option configures a Server.
type Option func(*Config)

// WithDebug enables request logging.
func WithDebug(debug bool) Option {
	return func(c *Config) { c.Debug = debug }
}

// WithCORSOrigins sets the allowed origins.
func WithCORSOrigins(origins string) Option {
	return func(c *Config) { c.CORSOrigins = origins }
}

// WithMaxFrameBytes bounds one encoded image.
func WithMaxFrameBytes(n int) Option {
	return func(c *Config) { c.MaxFrameBytes = n }
}

// WithTimeouts sets the HTTP read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		AppName:       "daltonize",
		CORSOrigins:   "*",
		MaxFrameBytes: 8 << 20,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Server wires the still handler, the session registry and the stats hub
// onto one Fiber app.
type Server struct {
	cfg      Config
	app      *fiber.App
	still    *recolor.Still
	registry *session.Registry
	metrics  *metrics.Metrics
	stats    *hub.Hub
	logger   *slog.Logger
	started  time.Time
}

// New builds the server and registers every route. m and stats may be nil,
// in which case /metrics and /ws/stats are not served.
func New(still *recolor.Still, registry *session.Registry, m *metrics.Metrics, stats *hub.Hub, opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}

	s := &Server{
		cfg:      cfg,
		still:    still,
		registry: registry,
		metrics:  m,
		stats:    stats,
		logger:   cfg.Logger.With("component", "server"),
		started:  time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		// Multipart framing adds a little on top of the image itself.
		BodyLimit:    cfg.MaxFrameBytes + 64<<10,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.Debug {
		s.app.Use(logger.New())
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	s.app.Post("/correct", s.handleCorrect)
	s.app.Post("/correct/:deficiency", s.handleCorrect)

	s.registerAPIRoutes(s.app.Group("/api"))

	// WebSocket upgrade middleware
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/stream", websocket.New(s.handleStream))
	if s.stats != nil {
		s.app.Get("/ws/stats", s.statsHandler())
	}
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	return c.SendString("Daltonize server is running. POST an image to /correct/{protanopia|deuteranopia|tritanopia}?strength=0..1, or stream frames over /ws/stream.\n")
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.registry.Stats()
	return c.JSON(fiber.Map{
		"status":       "ok",
		"version":      Version,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"sessions":     st.Connected + st.Active,
		"deficiencies": deficiency.Names(),
	})
}

// errorBody is the JSON shape of every HTTP error.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind recolor.Kind) int {
	switch kind {
	case recolor.KindInput:
		return fiber.StatusBadRequest
	case recolor.KindResource:
		return fiber.StatusRequestEntityTooLarge
	case recolor.KindSession:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind := recolor.KindInternal
		switch {
		case fe.Code == fiber.StatusRequestEntityTooLarge:
			kind = recolor.KindResource
		case fe.Code < 500:
			kind = recolor.KindInput
		}
		return c.Status(fe.Code).JSON(errorBody{Error: fe.Message, Kind: string(kind)})
	}

	kind := recolor.KindOf(err)
	status := statusFor(kind)
	if status >= 500 {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(errorBody{Error: err.Error(), Kind: string(kind)})
}

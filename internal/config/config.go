// Package config provides configuration loading for go-daltonize commands.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then environment variables. Commands apply flags last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default service configuration.
const (
	DefaultPort          = "5000"
	DefaultMaxPixels     = 4096 * 4096
	DefaultMaxFrameBytes = 8 << 20
	DefaultJPEGQuality   = 85
	DefaultIdleTimeout   = 60 * time.Second
	DefaultReapInterval  = 5 * time.Second
	DefaultMaxFPS        = 30
	DefaultMaxSessions   = 256
	DefaultStatsInterval = 2 * time.Second
)

// EnvConfigPath names the variable holding the YAML config path.
const EnvConfigPath = "DALTONIZE_CONFIG"

// Config is the full service configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
	Limits  Limits  `yaml:"limits"`
	Session Session `yaml:"session"`
}

// Server configures the HTTP listener.
type Server struct {
	Port            string        `yaml:"port"`
	CORSOrigins     string        `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StatsInterval   time.Duration `yaml:"stats_interval"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Limits bounds the work accepted per image.
type Limits struct {
	MaxPixels     int  `yaml:"max_pixels"`
	MaxFrameBytes int  `yaml:"max_frame_bytes"`
	JPEGQuality   int  `yaml:"jpeg_quality"`
	NativeCodec   bool `yaml:"native_codec"`
}

// Session configures stream sessions.
type Session struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	MaxFPS       float64       `yaml:"max_fps"`
	MaxSessions  int           `yaml:"max_sessions"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            DefaultPort,
			CORSOrigins:     "*",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StatsInterval:   DefaultStatsInterval,
		},
		Log: Log{Level: "info"},
		Limits: Limits{
			MaxPixels:     DefaultMaxPixels,
			MaxFrameBytes: DefaultMaxFrameBytes,
			JPEGQuality:   DefaultJPEGQuality,
		},
		Session: Session{
			IdleTimeout:  DefaultIdleTimeout,
			ReapInterval: DefaultReapInterval,
			MaxFPS:       DefaultMaxFPS,
			MaxSessions:  DefaultMaxSessions,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $DALTONIZE_CONFIG when path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg, rejecting unknown keys.
func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("PORT", &c.Server.Port)
	str("CORS_ORIGINS", &c.Server.CORSOrigins)
	str("LOG_LEVEL", &c.Log.Level)

	var errs []error
	errs = append(errs,
		integer("DALTONIZE_MAX_PIXELS", &c.Limits.MaxPixels),
		integer("DALTONIZE_MAX_FRAME_BYTES", &c.Limits.MaxFrameBytes),
		integer("DALTONIZE_JPEG_QUALITY", &c.Limits.JPEGQuality),
		integer("DALTONIZE_MAX_SESSIONS", &c.Session.MaxSessions),
		duration("IDLE_TIMEOUT", &c.Session.IdleTimeout),
		duration("DALTONIZE_REAP_INTERVAL", &c.Session.ReapInterval),
	)
	if v, ok := lookup("DALTONIZE_MAX_FPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DALTONIZE_MAX_FPS: %w", err))
		} else {
			c.Session.MaxFPS = f
		}
	}
	if v, ok := lookup("DALTONIZE_NATIVE_CODEC"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DALTONIZE_NATIVE_CODEC: %w", err))
		} else {
			c.Limits.NativeCodec = b
		}
	}
	return errors.Join(errs...)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Limits.MaxPixels <= 0 {
		errs = append(errs, errors.New("limits.max_pixels must be positive"))
	}
	if c.Limits.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("limits.max_frame_bytes must be positive"))
	}
	if c.Limits.JPEGQuality < 1 || c.Limits.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("limits.jpeg_quality %d out of range 1-100", c.Limits.JPEGQuality))
	}
	if c.Session.IdleTimeout < 0 || c.Session.ReapInterval < 0 {
		errs = append(errs, errors.New("session timeouts must not be negative"))
	}
	if c.Server.StatsInterval <= 0 {
		errs = append(errs, errors.New("server.stats_interval must be positive"))
	}
	if c.Session.MaxFPS < 0 {
		errs = append(errs, errors.New("session.max_fps must not be negative"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

// ServerURL returns the service URL from DALTONIZE_URL, or def.
func ServerURL(def string) string {
	if u := os.Getenv("DALTONIZE_URL"); u != "" {
		return u
	}
	return def
}

package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-daltonize/internal/log"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
)

// Default registry settings.
const (
	DefaultIdleTimeout    = 60 * time.Second
	DefaultReapInterval   = 5 * time.Second
	DefaultMaxFPS         = 30
	DefaultMaxSessions    = 256
	defaultBurstPerSecond = 1
)

// Config holds registry configuration.
type Config struct {
	// IdleTimeout closes sessions with no client events for this long.
	IdleTimeout time.Duration

	// ReapInterval is how often Run checks for idle sessions.
	ReapInterval time.Duration

	// MaxFPS limits accepted frames per session. Zero disables the limit.
	MaxFPS float64

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int

	Observer Observer
	Logger   *slog.Logger
}

// Option is a functional option for configuring a Registry.
type Option func(*Config)

// WithIdleTimeout sets the idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithReapInterval sets how often idle sessions are collected.
func WithReapInterval(d time.Duration) Option {
	return func(c *Config) { c.ReapInterval = d }
}

// WithMaxFPS sets the per-session ingress limit.
func WithMaxFPS(fps float64) Option {
	return func(c *Config) { c.MaxFPS = fps }
}

// WithMaxSessions caps concurrent sessions.
func WithMaxSessions(n int) Option {
	return func(c *Config) { c.MaxSessions = n }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  DefaultIdleTimeout,
		ReapInterval: DefaultReapInterval,
		MaxFPS:       DefaultMaxFPS,
		MaxSessions:  DefaultMaxSessions,
	}
}

// RegistryStats summarises the registry.
type RegistryStats struct {
	Connected int    `json:"connected"`
	Active    int    `json:"active"`
	Created   uint64 `json:"created"`
	Closed    uint64 `json:"closed"`
	Expired   uint64 `json:"expired"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
}

// Registry is the process-wide table of live sessions.
type Registry struct {
	cfg      Config
	pipeline Pipeline
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	created atomic.Uint64
	closed  atomic.Uint64
	expired atomic.Uint64

	// Counters of sessions already removed, folded into RegistryStats.
	retiredProcessed atomic.Uint64
	retiredDropped   atomic.Uint64

	// OnSessionClosed is called after a session leaves the table.
	OnSessionClosed func(id, reason string)
}

// NewRegistry creates a registry whose sessions process frames with p.
func NewRegistry(p Pipeline, opts ...Option) *Registry {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	return &Registry{
		cfg:      cfg,
		pipeline: p,
		logger:   cfg.Logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// Create registers a new session in the Connected state.
func (r *Registry) Create(em Emitter) (*Session, error) {
	var lim *rate.Limiter
	if r.cfg.MaxFPS > 0 {
		burst := int(r.cfg.MaxFPS) * defaultBurstPerSecond
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(r.cfg.MaxFPS), burst)
	}

	s := newSession(uuid.NewString(), em, r.pipeline, r.cfg.Observer, lim, r.logger)
	s.onClose = r.remove

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, &recolor.ResourceError{Err: ErrTooManySessions}
	}
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.created.Add(1)
	if r.cfg.Observer != nil {
		r.cfg.Observer.SessionOpened()
	}
	r.logger.Info("session created", "session", s.id)
	return s, nil
}

// Get returns the session with id, if it is still registered.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Destroy closes and removes a session. It reports whether the session
// was registered.
func (r *Registry) Destroy(id string) bool {
	return r.destroy(id, ReasonDisconnect)
}

func (r *Registry) destroy(id, reason string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	return s.Close(reason)
}

// remove is the sessions' close hook.
func (r *Registry) remove(s *Session, reason string) {
	r.mu.Lock()
	_, ok := r.sessions[s.id]
	delete(r.sessions, s.id)
	r.mu.Unlock()
	if !ok {
		return
	}

	st := s.Stats()
	r.retiredProcessed.Add(st.Processed)
	r.retiredDropped.Add(st.Dropped + st.Throttled)
	r.closed.Add(1)
	if reason == ReasonIdle {
		r.expired.Add(1)
	}
	if r.cfg.Observer != nil {
		r.cfg.Observer.SessionClosed(reason)
	}
	r.logger.Info("session closed", "session", s.id, "reason", reason,
		"processed", st.Processed, "dropped", st.Dropped)
	if r.OnSessionClosed != nil {
		r.OnSessionClosed(s.id, reason)
	}
}

// OnConnect is an alias for Create used by transports.
func (r *Registry) OnConnect(em Emitter) (*Session, error) {
	return r.Create(em)
}

// OnFrame routes a frame to session id. Unknown ids are reported as stale.
func (r *Registry) OnFrame(id string, in Input) error {
	s, ok := r.Get(id)
	if !ok {
		return &recolor.SessionStateError{SessionID: id, State: StateClosed.String()}
	}
	return s.OnFrame(in)
}

// OnParams routes a parameter change to session id.
func (r *Registry) OnParams(id string, u Update) error {
	s, ok := r.Get(id)
	if !ok {
		return &recolor.SessionStateError{SessionID: id, State: StateClosed.String()}
	}
	return s.OnParams(u)
}

// OnDisconnect closes session id.
func (r *Registry) OnDisconnect(id string) {
	r.destroy(id, ReasonDisconnect)
}

// Reap closes every session idle since before now minus the idle timeout
// and returns how many were closed.
func (r *Registry) Reap(now time.Time) int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.cfg.IdleTimeout)

	var idle []*Session
	r.mu.RLock()
	for _, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, s := range idle {
		if s.Close(ReasonIdle) {
			n++
		}
	}
	return n
}

// Run reaps idle sessions until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.cfg.ReapInterval
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll(ReasonShutdown)
			return nil
		case now := <-ticker.C:
			if n := r.Reap(now); n > 0 {
				r.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

// CloseAll closes every registered session.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close(reason)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns per-session stats ordered by creation time.
func (r *Registry) Sessions() []Stats {
	r.mu.RLock()
	out := make([]Stats, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats returns registry-wide counters.
func (r *Registry) Stats() RegistryStats {
	st := RegistryStats{
		Created:   r.created.Load(),
		Closed:    r.closed.Load(),
		Expired:   r.expired.Load(),
		Processed: r.retiredProcessed.Load(),
		Dropped:   r.retiredDropped.Load(),
	}
	for _, s := range r.Sessions() {
		switch s.State {
		case StateConnected.String():
			st.Connected++
		case StateActive.String():
			st.Active++
		}
		st.Processed += s.Processed
		st.Dropped += s.Dropped + s.Throttled
	}
	return st
}

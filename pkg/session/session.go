// Package session runs live correction streams.
//
// Each Session owns one worker goroutine and a single-slot mailbox. Frames
// that arrive while the worker is busy replace the waiting frame instead of
// queueing behind it, so output stays fresh and per-session order is
// preserved. Parameters are read when the worker pulls a frame; a change
// never applies to a frame already being processed.
package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/daltonize"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
)

// State is a session lifecycle state.
type State int32

// Session states.
const (
	StateConnected State = iota
	StateActive
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Close reasons.
const (
	ReasonDisconnect = "disconnect"
	ReasonIdle       = "idle"
	ReasonTransport  = "transport"
	ReasonShutdown   = "shutdown"
)

// Params are the correction settings applied to the next pulled frame.
type Params struct {
	Deficiency deficiency.Type
	Strength   daltonize.Strength
}

// Update changes session parameters. Zero fields leave the current value.
type Update struct {
	Deficiency string
	Strength   *float64
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.Deficiency == "" && u.Strength == nil
}

// Input is one encoded frame from the client.
type Input struct {
	// Seq orders frames within the session. Zero asks the session to assign one.
	Seq  uint64
	Data []byte

	// DataURL asks for the reply to be rendered as a data URL.
	DataURL bool

	// Update is applied before the frame is queued and persists for later frames.
	Update
}

// Output is one processed frame ready for the transport.
type Output struct {
	Seq     uint64
	Data    []byte
	Format  codec.Format
	DataURL bool
	Width   int
	Height  int
	Elapsed time.Duration
}

// Emitter delivers results to the client. Calls for one session are made
// from its worker goroutine, one at a time.
type Emitter interface {
	EmitFrame(out Output) error
	EmitError(seq uint64, err error) error
}

// Pipeline turns one encoded image into another.
type Pipeline interface {
	Handle(data []byte, p recolor.Params) (*recolor.Result, error)
}

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	FrameProcessed(d deficiency.Type, elapsed time.Duration)
	FrameDropped(reason string)
	FrameFailed(kind recolor.Kind)
	SessionOpened()
	SessionClosed(reason string)
}

// Stats is a point-in-time view of one session.
type Stats struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Deficiency   string    `json:"deficiency,omitempty"`
	Strength     float64   `json:"strength"`
	Received     uint64    `json:"received"`
	Processed    uint64    `json:"processed"`
	Dropped      uint64    `json:"dropped"`
	Throttled    uint64    `json:"throttled"`
	Failed       uint64    `json:"failed"`
	Discarded    uint64    `json:"discarded"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Session is one live stream. Event methods may be called from the
// transport's read loop while the worker runs.
type Session struct {
	id       string
	emitter  Emitter
	pipeline Pipeline
	observer Observer
	limiter  *rate.Limiter
	logger   *slog.Logger
	onClose  func(s *Session, reason string)

	box  *mailbox
	done chan struct{}

	mu        sync.Mutex
	state     State
	activated bool
	params    Params
	nextSeq   uint64

	// emitMu orders deliveries against Close: once Close holds it, no
	// result can reach the emitter.
	emitMu sync.RWMutex

	createdAt    time.Time
	lastActivity atomic.Int64

	received  atomic.Uint64
	processed atomic.Uint64
	throttled atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
}

func newSession(id string, em Emitter, p Pipeline, obs Observer, lim *rate.Limiter, logger *slog.Logger) *Session {
	now := time.Now()
	s := &Session{
		id:        id,
		emitter:   em,
		pipeline:  p,
		observer:  obs,
		limiter:   lim,
		logger:    logger.With("session", id),
		box:       newMailbox(),
		done:      make(chan struct{}),
		state:     StateConnected,
		params:    Params{Strength: daltonize.Full},
		createdAt: now,
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Params returns the current parameters.
func (s *Session) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Done is closed when the worker has exited, or at Close if no worker was
// ever started.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// LastActivity returns the time of the most recent client event.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Touch records client activity such as a keep-alive.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// OnParams applies a parameter change. The first change that names a
// deficiency activates the session.
func (s *Session) OnParams(u Update) error {
	s.Touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return s.staleLocked()
	}
	return s.applyLocked(u)
}

// OnFrame queues a frame for processing. Attached parameters are applied
// first. A frame that arrives while another is waiting replaces it.
func (s *Session) OnFrame(in Input) error {
	s.Touch()
	s.mu.Lock()

	if s.state == StateClosed {
		err := s.staleLocked()
		s.mu.Unlock()
		return err
	}
	if err := s.applyLocked(in.Update); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != StateActive {
		s.mu.Unlock()
		return &recolor.InputError{Err: ErrNoParams}
	}
	if in.Seq == 0 {
		s.nextSeq++
		in.Seq = s.nextSeq
	} else if in.Seq > s.nextSeq {
		s.nextSeq = in.Seq
	}
	s.mu.Unlock()

	s.received.Add(1)
	if s.limiter != nil && !s.limiter.Allow() {
		s.throttled.Add(1)
		s.observeDrop("throttled")
		return nil
	}

	replaced, ok := s.box.put(&job{in: in, received: time.Now()})
	if !ok {
		return &recolor.SessionStateError{SessionID: s.id, State: StateClosed.String()}
	}
	if replaced != nil {
		s.observeDrop("superseded")
		s.logger.Debug("dropped stale frame", "seq", replaced.in.Seq, "newer", in.Seq)
	}
	return nil
}

// applyLocked validates u and stores it. It must be called with s.mu held.
func (s *Session) applyLocked(u Update) error {
	if u.Empty() {
		return nil
	}
	next := s.params
	if u.Deficiency != "" {
		d, err := deficiency.Parse(u.Deficiency)
		if err != nil {
			return &recolor.InputError{Err: err}
		}
		next.Deficiency = d
	}
	if u.Strength != nil {
		st, err := daltonize.NewStrength(*u.Strength)
		if err != nil {
			return &recolor.InputError{Err: err}
		}
		next.Strength = st
	}
	s.params = next

	if s.state == StateConnected && u.Deficiency != "" {
		s.state = StateActive
		s.activated = true
		go s.run()
		s.logger.Debug("session active", "deficiency", next.Deficiency, "strength", float64(next.Strength))
	}
	return nil
}

func (s *Session) staleLocked() error {
	return &recolor.SessionStateError{SessionID: s.id, State: StateClosed.String()}
}

// Close moves the session to Closed. A frame mid-processing finishes and
// its result is discarded. Close is idempotent and reports whether this
// call performed the transition.
func (s *Session) Close(reason string) bool {
	s.emitMu.Lock()
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		s.emitMu.Unlock()
		return false
	}
	hadWorker := s.state == StateActive
	s.state = StateClosed
	s.mu.Unlock()
	s.emitMu.Unlock()

	if s.box.close() {
		s.discarded.Add(1)
	}
	if !hadWorker {
		close(s.done)
	}

	s.logger.Debug("session closed", "reason", reason)
	if s.onClose != nil {
		s.onClose(s, reason)
	}
	return true
}

// run is the worker loop. Exactly one runs per active session.
func (s *Session) run() {
	defer close(s.done)
	for {
		j := s.box.take()
		if j == nil {
			return
		}
		p := s.Params()

		res, err := s.pipeline.Handle(j.in.Data, recolor.Params{
			Deficiency: p.Deficiency,
			Strength:   p.Strength,
		})
		if !s.deliver(j, p, res, err) {
			s.Close(ReasonTransport)
			return
		}
	}
}

// deliver hands one result to the emitter unless the session closed in the
// meantime. It returns false when the transport failed.
func (s *Session) deliver(j *job, p Params, res *recolor.Result, procErr error) bool {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()

	if s.State() == StateClosed {
		s.discarded.Add(1)
		return true
	}

	var err error
	if procErr != nil {
		s.failed.Add(1)
		procErr = recolor.Classify(procErr)
		if s.observer != nil {
			s.observer.FrameFailed(recolor.KindOf(procErr))
		}
		s.logger.Debug("frame failed", "seq", j.in.Seq, "error", procErr)
		err = s.emitter.EmitError(j.in.Seq, procErr)
	} else {
		s.processed.Add(1)
		if s.observer != nil {
			s.observer.FrameProcessed(p.Deficiency, res.Elapsed)
		}
		err = s.emitter.EmitFrame(Output{
			Seq:     j.in.Seq,
			Data:    res.Data,
			Format:  res.Format,
			DataURL: j.in.DataURL,
			Width:   res.Width,
			Height:  res.Height,
			Elapsed: time.Since(j.received),
		})
	}
	if err != nil {
		s.logger.Warn("emit failed", "seq", j.in.Seq, "error", err)
		return false
	}
	return true
}

func (s *Session) observeDrop(reason string) {
	if s.observer != nil {
		s.observer.FrameDropped(reason)
	}
}

// Stats returns counters for the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		ID:        s.id,
		State:     s.state.String(),
		Strength:  float64(s.params.Strength),
		CreatedAt: s.createdAt,
	}
	if s.activated {
		st.Deficiency = s.params.Deficiency.String()
	}
	s.mu.Unlock()

	_, dropped := s.box.drops()
	st.Received = s.received.Load()
	st.Processed = s.processed.Load()
	st.Dropped = dropped
	st.Throttled = s.throttled.Load()
	st.Failed = s.failed.Load()
	st.Discarded = s.discarded.Load()
	st.LastActivity = s.LastActivity()
	return st
}

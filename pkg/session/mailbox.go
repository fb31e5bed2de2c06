package session

import (
	"sync"
	"time"
)

// job is one submitted frame waiting for the worker.
type job struct {
	in       Input
	received time.Time
}

// mailbox is a single-slot buffer with overwrite semantics. A put replaces
// any frame the worker has not taken yet, so the worker always sees the
// newest frame and never a superseded one.
type mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *job
	closed  bool

	consecutiveDrops uint64
	totalDrops       uint64
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// put stores j, returning the job it replaced. It reports false if the
// mailbox is closed.
func (m *mailbox) put(j *job) (replaced *job, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false
	}
	if m.pending != nil {
		replaced = m.pending
		m.consecutiveDrops++
		m.totalDrops++
	}
	m.pending = j
	m.cond.Signal()
	return replaced, true
}

// take blocks until a job is available. It returns nil once closed.
func (m *mailbox) take() *job {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.pending == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return nil
	}
	j := m.pending
	m.pending = nil
	m.consecutiveDrops = 0
	return j
}

// close wakes the worker and releases any pending job. It reports whether
// a job was discarded.
func (m *mailbox) close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.closed = true
	discarded := m.pending != nil
	m.pending = nil
	m.cond.Broadcast()
	return discarded
}

func (m *mailbox) drops() (consecutive, total uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveDrops, m.totalDrops
}

package service

import (
	"sync"
	"time"

	"github.com/paywatch/paywatch/internal/api/metrics"
	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// SessionMonitor is the state machine of one logged-in session. It starts
// Live and moves to Invalidated exactly once, either from an account push or
// from its idle watchdog. Later pushes are ignored.
type SessionMonitor struct {
	rec ports.SessionRecord

	mu          sync.Mutex
	state       domain.SessionState
	reason      domain.InvalidationReason
	fingerprint string
	watchdog    *IdleWatchdog
	done        chan struct{}
	idleCheck   IdleCheck
	onEnd       func(*SessionMonitor)
}

// IdleCheck decides what an elapsed idle countdown means. A positive extend
// re-arms the watchdog for that long; otherwise the session ends with reason.
type IdleCheck func(m *SessionMonitor) (extend time.Duration, reason domain.InvalidationReason)

// NewSessionMonitor starts a live session and its idle watchdog. onEnd runs
// once, outside the monitor lock, after the session is invalidated.
func NewSessionMonitor(rec ports.SessionRecord, idle time.Duration, onEnd func(*SessionMonitor)) *SessionMonitor {
	return newSessionMonitor(rec, idle, nil, onEnd)
}

func newSessionMonitor(rec ports.SessionRecord, idle time.Duration, check IdleCheck, onEnd func(*SessionMonitor)) *SessionMonitor {
	m := &SessionMonitor{
		rec:         rec,
		state:       domain.SessionLive,
		fingerprint: rec.Fingerprint,
		done:        make(chan struct{}),
		idleCheck:   check,
		onEnd:       onEnd,
	}
	m.watchdog = NewIdleWatchdog(idle, m.idleElapsed)
	metrics.SessionsLive.Inc()
	return m
}

func (m *SessionMonitor) idleElapsed() {
	reason := domain.ReasonIdle
	if m.idleCheck != nil {
		extend, r := m.idleCheck(m)
		if extend > 0 && m.watchdog.Rearm(extend) {
			return
		}
		if r != "" {
			reason = r
		}
	}
	m.Invalidate(reason)
}

func (m *SessionMonitor) ID() string       { return m.rec.ID }
func (m *SessionMonitor) Username() string { return m.rec.Username }
func (m *SessionMonitor) Role() string     { return m.rec.Role }

// Observe applies one pushed snapshot of the session's account; nil means the
// account was deleted. It reports whether this push ended the session.
func (m *SessionMonitor) Observe(acct *domain.Account) bool {
	m.mu.Lock()
	if m.state != domain.SessionLive {
		m.mu.Unlock()
		return false
	}
	reason := domain.InvalidationFor(acct, m.fingerprint)
	m.mu.Unlock()

	if reason == "" {
		return false
	}
	return m.Invalidate(reason)
}

// Invalidate ends the session with reason. It reports false when the session
// had already ended.
func (m *SessionMonitor) Invalidate(reason domain.InvalidationReason) bool {
	m.mu.Lock()
	if m.state != domain.SessionLive {
		m.mu.Unlock()
		return false
	}
	m.state = domain.SessionInvalidated
	m.reason = reason
	m.fingerprint = ""
	close(m.done)
	m.mu.Unlock()

	m.watchdog.Stop()
	metrics.SessionsLive.Dec()
	metrics.SessionInvalidationsTotal.WithLabelValues(string(reason)).Inc()
	if m.onEnd != nil {
		m.onEnd(m)
	}
	return true
}

// Touch records user activity and restarts the idle countdown.
func (m *SessionMonitor) Touch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.SessionLive {
		return &domain.SessionInvalidatedError{Reason: m.reason}
	}
	m.watchdog.Reset()
	return nil
}

// State returns the current state and, once invalidated, the reason.
func (m *SessionMonitor) State() (domain.SessionState, domain.InvalidationReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.reason
}

// Done is closed when the session is invalidated.
func (m *SessionMonitor) Done() <-chan struct{} {
	return m.done
}

func (m *SessionMonitor) status() *ports.SessionStatus {
	state, reason := m.State()
	return &ports.SessionStatus{
		SessionID: m.rec.ID,
		Username:  m.rec.Username,
		Role:      m.rec.Role,
		State:     state,
		Reason:    reason,
	}
}

// IdleWatchdog fires onIdle once after timeout without a Reset. Rearm
// restarts a watchdog that has fired.
type IdleWatchdog struct {
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	fired   bool
	stopped bool
}

// NewIdleWatchdog starts the countdown immediately. A non-positive timeout
// uses domain.DefaultIdleTimeout.
func NewIdleWatchdog(timeout time.Duration, onIdle func()) *IdleWatchdog {
	if timeout <= 0 {
		timeout = domain.DefaultIdleTimeout
	}
	w := &IdleWatchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		if w.stopped || w.fired {
			w.mu.Unlock()
			return
		}
		w.fired = true
		w.mu.Unlock()
		onIdle()
	})
	return w
}

// Reset restarts the countdown. It reports false if the watchdog already
// fired or was stopped.
func (w *IdleWatchdog) Reset() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.fired {
		return false
	}
	if !w.timer.Stop() {
		// Timer fired and its callback is waiting for the lock.
		return false
	}
	w.timer.Reset(w.timeout)
	return true
}

// Rearm starts a fresh countdown of d after the watchdog fired. It reports
// false once the watchdog was stopped.
func (w *IdleWatchdog) Rearm(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.fired = false
	w.timer.Stop()
	w.timer.Reset(d)
	return true
}

// Stop cancels the countdown without firing.
func (w *IdleWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}

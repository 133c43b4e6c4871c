// Package integrity watches an exam attempt for tab switches, window blur
// and fullscreen exits, counts violations against a configured threshold and
// signals auto-submission when the threshold is crossed.
package integrity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/model"
)

// DebounceWindow drops any violation recorded within this interval of the
// previous one, of any type. A single user action (alt-tab) can fire several
// browser signals back to back; only the first counts.
const DebounceWindow = 1000 * time.Millisecond

// SignalKind identifies one of the three environment signal sources the
// monitor observes.
type SignalKind string

const (
	SignalDocumentHidden   SignalKind = "document-hidden"
	SignalWindowBlur       SignalKind = "window-blur"
	SignalFullscreenChange SignalKind = "fullscreen-change"
)

// Signal is one environment event pushed into the monitor by the transport
// layer (or a test fake).
type Signal struct {
	Kind SignalKind `json:"kind" binding:"required,oneof=document-hidden window-blur fullscreen-change"`
	// Hidden reports document visibility for document-hidden signals.
	Hidden bool `json:"hidden"`
	// InFullscreen reports the fullscreen state for fullscreen-change signals.
	InFullscreen bool `json:"inFullscreen"`
}

type state int

const (
	stateInactive state = iota
	stateActive
	stateSubmitting
)

// Config carries the per-exam integrity settings.
type Config struct {
	ViolationThreshold    int
	AutoSubmitOnViolation bool
}

// ViolationFunc observes each recorded violation with the running count and
// the configured threshold.
type ViolationFunc func(v model.Violation, count, threshold int)

// Monitor is the per-attempt integrity state machine. One instance is
// constructed per exam attempt and destroyed at submission; it is never
// shared between attempts.
//
// All methods are safe for concurrent use; signal handling, observer
// registration and teardown serialize on one mutex.
type Monitor struct {
	mu sync.Mutex

	cfg   Config
	log   zerolog.Logger
	clock func() time.Time

	state         state
	violations    []model.Violation
	lastViolation time.Time
	reentering    bool
	limitNotified bool

	onViolation  []ViolationFunc
	onAutoSubmit []func()
}

// NewMonitor creates an inactive monitor. Activate must be called before
// signals are processed.
func NewMonitor(log zerolog.Logger) *Monitor {
	return &Monitor{
		log:   log.With().Str("component", "integrity_monitor").Logger(),
		clock: time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Monitor) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Activate resets all violation state and arms the monitor with the exam's
// integrity settings. A threshold below 1 falls back to 3.
func (m *Monitor) Activate(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.ViolationThreshold < 1 {
		cfg.ViolationThreshold = 3
	}

	m.cfg = cfg
	m.state = stateActive
	m.violations = nil
	m.lastViolation = time.Time{}
	m.reentering = false
	m.limitNotified = false

	m.log.Info().
		Int("threshold", cfg.ViolationThreshold).
		Bool("auto_submit", cfg.AutoSubmitOnViolation).
		Msg("Integrity monitor activated")
}

// Restore seeds the monitor with violation history carried over from a
// resumed session snapshot. Must be called after Activate.
func (m *Monitor) Restore(history []model.Violation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateActive || len(history) == 0 {
		return
	}
	m.violations = append(m.violations[:0], history...)
	m.lastViolation = history[len(history)-1].Timestamp
}

// OnViolation registers an observer for recorded violations.
func (m *Monitor) OnViolation(fn ViolationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn != nil {
		m.onViolation = append(m.onViolation, fn)
	}
}

// OnAutoSubmit registers an observer invoked exactly once when the violation
// threshold is crossed with auto-submission enabled.
func (m *Monitor) OnAutoSubmit(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn != nil {
		m.onAutoSubmit = append(m.onAutoSubmit, fn)
	}
}

// Observe feeds one environment signal through the state machine.
func (m *Monitor) Observe(sig Signal) {
	m.mu.Lock()

	if m.state != stateActive {
		m.mu.Unlock()
		return
	}

	var vtype model.ViolationType
	switch sig.Kind {
	case SignalDocumentHidden:
		if !sig.Hidden {
			m.mu.Unlock()
			return
		}
		vtype = model.ViolationTabSwitch
	case SignalWindowBlur:
		// A blur that accompanies the document going hidden is reported as a
		// tab switch by the visibility signal, not double-counted here.
		if sig.Hidden {
			m.mu.Unlock()
			return
		}
		vtype = model.ViolationWindowBlur
	case SignalFullscreenChange:
		if sig.InFullscreen {
			// Re-entry completed.
			m.reentering = false
			m.mu.Unlock()
			return
		}
		if m.reentering {
			m.log.Debug().Msg("Fullscreen exit suppressed during re-entry")
			m.mu.Unlock()
			return
		}
		vtype = model.ViolationFullscreenExit
	default:
		m.mu.Unlock()
		return
	}

	now := m.clock()
	if !m.lastViolation.IsZero() && now.Sub(m.lastViolation) < DebounceWindow {
		m.log.Debug().Str("type", string(vtype)).Msg("Violation debounced")
		m.mu.Unlock()
		return
	}
	m.lastViolation = now

	v := model.Violation{Type: vtype, Timestamp: now}
	m.violations = append(m.violations, v)
	count := len(m.violations)
	threshold := m.cfg.ViolationThreshold

	m.log.Warn().
		Str("type", string(vtype)).
		Int("count", count).
		Int("threshold", threshold).
		Msg("Integrity violation recorded")

	if vtype == model.ViolationFullscreenExit && count < threshold {
		// The attempt may re-request fullscreen; suppress exit signals until
		// the change event confirms re-entry.
		m.reentering = true
	}

	violationObs := append([]ViolationFunc(nil), m.onViolation...)

	crossed := count >= threshold && !m.limitNotified
	var submitObs []func()
	if crossed {
		m.limitNotified = true
		if m.cfg.AutoSubmitOnViolation {
			m.state = stateSubmitting
			submitObs = append(submitObs, m.onAutoSubmit...)
		}
	}
	m.mu.Unlock()

	// Observers run outside the lock; a panicking observer must not take the
	// monitor or its siblings down with it.
	for _, fn := range violationObs {
		m.safeNotify(func() { fn(v, count, threshold) })
	}
	for _, fn := range submitObs {
		m.safeNotify(fn)
	}
}

func (m *Monitor) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("Integrity observer panicked")
		}
	}()
	fn()
}

// Snapshot returns the current violation count and a copy of the log.
func (m *Monitor) Snapshot() (int, []model.Violation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := make([]model.Violation, len(m.violations))
	copy(log, m.violations)
	return len(m.violations), log
}

// Destroy tears the monitor down: no further signals are processed and all
// observers are released. Idempotent.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateInactive && m.onViolation == nil && m.onAutoSubmit == nil {
		return
	}

	m.state = stateInactive
	m.onViolation = nil
	m.onAutoSubmit = nil
	m.log.Debug().Msg("Integrity monitor destroyed")
}

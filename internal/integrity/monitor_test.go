package integrity

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/model"
)

// fakeClock advances manually so debounce behavior is deterministic.
type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMonitor(cfg Config) (*Monitor, *fakeClock) {
	m := NewMonitor(zerolog.Nop())
	clock := newFakeClock()
	m.SetClock(clock.Now)
	m.Activate(cfg)
	return m, clock
}

func tabSwitch() Signal {
	return Signal{Kind: SignalDocumentHidden, Hidden: true}
}

func TestThresholdFiresAutoSubmitOnce(t *testing.T) {
	m, clock := newTestMonitor(Config{ViolationThreshold: 3, AutoSubmitOnViolation: true})

	var submits, limitHits int32
	m.OnAutoSubmit(func() { atomic.AddInt32(&submits, 1) })
	m.OnViolation(func(v model.Violation, count, threshold int) {
		if count >= threshold {
			atomic.AddInt32(&limitHits, 1)
		}
	})

	// Five violations, each outside the debounce window. Only the first
	// three count (the monitor enters the submitting state at the third).
	for i := 0; i < 5; i++ {
		m.Observe(tabSwitch())
		clock.Advance(1500 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&submits); got != 1 {
		t.Fatalf("auto-submit fired %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&limitHits); got != 1 {
		t.Fatalf("limit notification fired %d times, want 1", got)
	}

	count, log := m.Snapshot()
	if count != 3 || len(log) != 3 {
		t.Fatalf("snapshot count %d, log %d, want 3/3", count, len(log))
	}
}

func TestDebounceDropsRapidViolations(t *testing.T) {
	m, clock := newTestMonitor(Config{ViolationThreshold: 5})

	m.Observe(tabSwitch())
	clock.Advance(200 * time.Millisecond)
	m.Observe(Signal{Kind: SignalWindowBlur}) // different type, still debounced

	count, _ := m.Snapshot()
	if count != 1 {
		t.Fatalf("recorded %d violations within the debounce window, want 1", count)
	}

	clock.Advance(DebounceWindow)
	m.Observe(Signal{Kind: SignalWindowBlur})
	if count, _ := m.Snapshot(); count != 2 {
		t.Fatalf("recorded %d violations, want 2", count)
	}
}

func TestBlurWhileHiddenNotDoubleCounted(t *testing.T) {
	m, clock := newTestMonitor(Config{ViolationThreshold: 5})

	m.Observe(Signal{Kind: SignalWindowBlur, Hidden: true})
	if count, _ := m.Snapshot(); count != 0 {
		t.Fatalf("blur with hidden document recorded %d violations, want 0", count)
	}

	clock.Advance(2 * time.Second)
	m.Observe(Signal{Kind: SignalDocumentHidden, Hidden: false})
	if count, _ := m.Snapshot(); count != 0 {
		t.Fatalf("document-visible signal recorded %d violations, want 0", count)
	}
}

func TestFullscreenReentryGuard(t *testing.T) {
	m, clock := newTestMonitor(Config{ViolationThreshold: 5})

	exit := Signal{Kind: SignalFullscreenChange, InFullscreen: false}

	m.Observe(exit)
	if count, _ := m.Snapshot(); count != 1 {
		t.Fatalf("first exit recorded %d violations, want 1", count)
	}

	// While re-entry is pending, further exit signals are suppressed even
	// well outside the debounce window.
	clock.Advance(5 * time.Second)
	m.Observe(exit)
	if count, _ := m.Snapshot(); count != 1 {
		t.Fatal("exit during re-entry was recorded")
	}

	// Re-entry confirmed, the next exit counts again.
	m.Observe(Signal{Kind: SignalFullscreenChange, InFullscreen: true})
	clock.Advance(5 * time.Second)
	m.Observe(exit)
	if count, _ := m.Snapshot(); count != 2 {
		t.Fatalf("exit after re-entry recorded %d violations, want 2", count)
	}
}

func TestObserverPanicIsolated(t *testing.T) {
	m, clock := newTestMonitor(Config{ViolationThreshold: 2, AutoSubmitOnViolation: true})

	var secondRan, submitted bool
	m.OnViolation(func(model.Violation, int, int) { panic("bad observer") })
	m.OnViolation(func(model.Violation, int, int) { secondRan = true })
	m.OnAutoSubmit(func() { submitted = true })

	m.Observe(tabSwitch())
	clock.Advance(2 * time.Second)
	m.Observe(tabSwitch())

	if !secondRan {
		t.Fatal("second observer did not run after first panicked")
	}
	if !submitted {
		t.Fatal("auto-submit observer did not run")
	}
}

func TestRestoreCarriesPriorHistory(t *testing.T) {
	m, clock := newTestMonitor(Config{ViolationThreshold: 3, AutoSubmitOnViolation: true})

	prior := []model.Violation{
		{Type: model.ViolationTabSwitch, Timestamp: clock.Now().Add(-time.Minute)},
		{Type: model.ViolationWindowBlur, Timestamp: clock.Now().Add(-30 * time.Second)},
	}
	m.Restore(prior)

	var submits int32
	m.OnAutoSubmit(func() { atomic.AddInt32(&submits, 1) })

	// One more violation crosses the threshold carried over from resume.
	m.Observe(tabSwitch())

	if got := atomic.LoadInt32(&submits); got != 1 {
		t.Fatalf("auto-submit fired %d times after restored history, want 1", got)
	}
	count, _ := m.Snapshot()
	if count != 3 {
		t.Fatalf("snapshot count %d, want 3", count)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	m, _ := newTestMonitor(Config{ViolationThreshold: 1, AutoSubmitOnViolation: true})

	fired := false
	m.OnAutoSubmit(func() { fired = true })

	m.Destroy()
	m.Destroy()

	m.Observe(tabSwitch())
	if fired {
		t.Fatal("destroyed monitor still processed a signal")
	}
	if count, _ := m.Snapshot(); count != 0 {
		t.Fatalf("destroyed monitor recorded %d violations", count)
	}
}

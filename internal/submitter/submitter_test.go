package submitter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/config"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/storage"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []string
	failing  map[string]bool // submission ids that always fail
	failNext int             // transient failures before the next success
}

func (f *fakeTransport) Send(_ context.Context, r *model.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing[r.SubmissionID] {
		return errors.New("endpoint unreachable")
	}
	if f.failNext > 0 {
		f.failNext--
		return errors.New("endpoint unreachable")
	}
	f.sent = append(f.sent, r.SubmissionID)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type offlineProbe struct{}

func (offlineProbe) Online(context.Context) bool { return false }

func resultWithID(id string) *model.Result {
	return &model.Result{SubmissionID: id, Version: "1.0.0"}
}

func newTestSubmitter(t *testing.T, transport Transport, kv storage.KV, opts Options) (*Submitter, *[]time.Duration) {
	t.Helper()
	slept := &[]time.Duration{}
	opts.Sleep = func(_ context.Context, d time.Duration) {
		*slept = append(*slept, d)
	}
	return New(zerolog.Nop(), transport, kv, opts), slept
}

func TestSubmitDeliversFirstTry(t *testing.T) {
	kv := storage.NewMemory()
	transport := &fakeTransport{}
	sub, slept := newTestSubmitter(t, transport, kv, Options{})

	out := sub.Submit(context.Background(), resultWithID("SUB-1"))
	if out.Disposition != Delivered || out.Attempts != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept %v on a clean delivery", *slept)
	}
	if n, _ := sub.Queue().Len(context.Background()); n != 0 {
		t.Fatalf("queue len = %d", n)
	}
}

func TestSubmitRetriesTransientFailure(t *testing.T) {
	kv := storage.NewMemory()
	transport := &fakeTransport{failNext: 2}
	sub, slept := newTestSubmitter(t, transport, kv, Options{RetryDelay: 2 * time.Second})

	out := sub.Submit(context.Background(), resultWithID("SUB-1"))
	if out.Disposition != Delivered || out.Attempts != 3 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(*slept) != 2 || (*slept)[0] != 2*time.Second {
		t.Fatalf("slept = %v", *slept)
	}
}

func TestSubmitQueuesAfterExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	transport := &fakeTransport{failing: map[string]bool{"SUB-1": true}}

	var pendingSeen []int
	sub, _ := newTestSubmitter(t, transport, kv, Options{
		OnPendingSyncs: func(n int) { pendingSeen = append(pendingSeen, n) },
	})

	out := sub.Submit(ctx, resultWithID("SUB-1"))
	if out.Disposition != Queued || out.Attempts != DefaultMaxRetries || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if n, _ := sub.Queue().Len(ctx); n != 1 {
		t.Fatalf("queue len = %d", n)
	}
	if len(pendingSeen) == 0 || pendingSeen[len(pendingSeen)-1] != 1 {
		t.Fatalf("pending notifications = %v", pendingSeen)
	}

	// Failed or not, a local copy of the result exists.
	if _, err := kv.Get(ctx, config.StorageKey.ResultFallbackKey("SUB-1")); err != nil {
		t.Fatalf("local fallback missing: %v", err)
	}
}

func TestSubmitOfflineSkipsTransport(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	transport := &fakeTransport{}
	sub, slept := newTestSubmitter(t, transport, kv, Options{Probe: offlineProbe{}})

	out := sub.Submit(ctx, resultWithID("SUB-1"))
	if out.Disposition != Queued || out.Attempts != DefaultMaxRetries || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if transport.sentCount() != 0 {
		t.Fatal("transport used while offline")
	}
	// Offline attempts still pace themselves like real ones.
	if len(*slept) != DefaultMaxRetries-1 {
		t.Fatalf("slept = %v", *slept)
	}
	if n, _ := sub.Queue().Len(ctx); n != 1 {
		t.Fatalf("queue len = %d", n)
	}
}

func TestSubmitWithoutEndpointKeepsLocalCopy(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	sub, _ := newTestSubmitter(t, nil, kv, Options{})

	out := sub.Submit(ctx, resultWithID("SUB-1"))
	if out.Disposition != Unconfigured || !errors.Is(out.Err, ErrNoEndpoint) {
		t.Fatalf("outcome = %+v", out)
	}
	if _, err := kv.Get(ctx, config.StorageKey.ResultFallbackKey("SUB-1")); err != nil {
		t.Fatalf("local fallback missing: %v", err)
	}
}

func TestProcessQueueDrainsDeliverableEntries(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	transport := &fakeTransport{failing: map[string]bool{"SUB-2": true}}
	sub, _ := newTestSubmitter(t, transport, kv, Options{})

	if err := sub.Queue().Enqueue(ctx, resultWithID("SUB-1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := sub.Queue().Enqueue(ctx, resultWithID("SUB-2")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	delivered := sub.ProcessQueue(ctx)
	if delivered != 1 {
		t.Fatalf("delivered = %d", delivered)
	}

	pending, err := sub.Queue().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].SubmissionID != "SUB-2" {
		t.Fatalf("pending = %+v", pending)
	}

	// Once the endpoint recovers, the next pass empties the queue.
	transport.failing = nil
	if delivered := sub.ProcessQueue(ctx); delivered != 1 {
		t.Fatalf("second pass delivered = %d", delivered)
	}
	if n, _ := sub.Queue().Len(ctx); n != 0 {
		t.Fatalf("queue len = %d", n)
	}
}

func TestQueueEnqueueReplacesSameSubmission(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(storage.NewMemory(), zerolog.Nop())

	first := resultWithID("SUB-1")
	first.Scoring.ObtainedMarks = 1
	second := resultWithID("SUB-1")
	second.Scoring.ObtainedMarks = 2

	if err := queue.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := queue.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	pending, err := queue.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].Scoring.ObtainedMarks != 2 {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestGenerateSubmissionID(t *testing.T) {
	a := GenerateSubmissionID()
	b := GenerateSubmissionID()
	if !strings.HasPrefix(a, "SUB-") {
		t.Fatalf("id = %q", a)
	}
	if a == b {
		t.Fatalf("ids collided: %q", a)
	}
}

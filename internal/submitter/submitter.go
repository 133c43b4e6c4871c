// Package submitter delivers finished exam results to the configured
// collection endpoint, with retry and an offline queue so a result is never
// lost to a flaky staffroom network.
package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/config"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/storage"
)

const (
	// DefaultMaxRetries is the attempt count per delivery before queueing.
	DefaultMaxRetries = 3
	// DefaultRetryDelay separates consecutive attempts.
	DefaultRetryDelay = 2 * time.Second
)

// ErrNoEndpoint is reported when no collection endpoint is configured; the
// locally saved copy is then the only record of the result.
var ErrNoEndpoint = errors.New("submitter: no result endpoint configured")

// errOffline marks an attempt skipped because the network looked down.
var errOffline = errors.New("submitter: network unreachable")

// Transport pushes one result payload to the collection endpoint. The
// endpoint's response body is deliberately not surfaced: delivery is
// fire-and-forget and success only means the payload was handed off.
type Transport interface {
	Send(ctx context.Context, result *model.Result) error
}

// Probe reports whether the network looks usable. An attempt made while the
// probe says offline is counted as failed without a network call.
type Probe interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is the Probe used when no connectivity check is configured.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }

// Disposition says where a result ended up.
type Disposition string

const (
	// Delivered means the endpoint accepted the payload.
	Delivered Disposition = "delivered"
	// Queued means delivery failed and the result waits for a sync pass.
	Queued Disposition = "queued"
	// Dropped means a retry pass failed; the result stays in the queue.
	Dropped Disposition = "dropped"
	// Unconfigured means there is no endpoint and nothing was sent.
	Unconfigured Disposition = "unconfigured"
)

// Outcome is the report of one Submit call.
type Outcome struct {
	SubmissionID string
	Disposition  Disposition
	Attempts     int
	Err          error
}

// Options tune a Submitter; zero values fall back to the defaults above.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Probe      Probe
	// Sleep is swapped out in tests.
	Sleep func(ctx context.Context, d time.Duration)
	// OnPendingSyncs observes queue depth changes (heartbeat reporting).
	OnPendingSyncs func(n int)
}

// Submitter coordinates transport, retries and the offline queue.
type Submitter struct {
	log       zerolog.Logger
	transport Transport
	queue     *Queue
	kv        storage.KV
	opts      Options
}

// New builds a Submitter. transport may be nil when no endpoint is
// configured; results then go straight to local fallback.
func New(log zerolog.Logger, transport Transport, kv storage.KV, opts Options) *Submitter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Probe == nil {
		opts.Probe = AlwaysOnline{}
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}
	return &Submitter{
		log:       log.With().Str("component", "submitter").Logger(),
		transport: transport,
		queue:     NewQueue(kv, log),
		kv:        kv,
		opts:      opts,
	}
}

// Queue exposes the offline queue, mainly for the sync endpoint.
func (s *Submitter) Queue() *Queue { return s.queue }

// Submit delivers one result. A result that cannot be delivered after all
// retries is queued for a later sync pass; a locally saved copy always
// exists regardless of delivery outcome.
func (s *Submitter) Submit(ctx context.Context, result *model.Result) Outcome {
	s.saveLocal(ctx, result)

	if s.transport == nil {
		s.log.Info().Str("submission_id", result.SubmissionID).Msg("No endpoint configured, result kept locally")
		return Outcome{SubmissionID: result.SubmissionID, Disposition: Unconfigured, Err: ErrNoEndpoint}
	}

	attempts, err := s.deliver(ctx, result)
	if err == nil {
		return Outcome{SubmissionID: result.SubmissionID, Disposition: Delivered, Attempts: attempts}
	}

	s.log.Warn().
		Err(err).
		Str("submission_id", result.SubmissionID).
		Int("attempts", attempts).
		Msg("Delivery failed, queueing for sync")
	s.enqueue(ctx, result)
	return Outcome{SubmissionID: result.SubmissionID, Disposition: Queued, Attempts: attempts, Err: err}
}

// deliver makes up to MaxRetries attempts with a fixed delay between them.
// An attempt made while the network probe reports offline counts as failed
// without touching the transport.
func (s *Submitter) deliver(ctx context.Context, result *model.Result) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		err := errOffline
		if s.opts.Probe.Online(ctx) {
			err = s.transport.Send(ctx, result)
		}
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		s.log.Debug().
			Err(err).
			Str("submission_id", result.SubmissionID).
			Int("attempt", attempt).
			Msg("Delivery attempt failed")
		if attempt < s.opts.MaxRetries {
			s.opts.Sleep(ctx, s.opts.RetryDelay)
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
	}
	return s.opts.MaxRetries, lastErr
}

// ProcessQueue walks the offline queue once, retrying each entry. Entries
// that still fail stay queued for the next pass. Returns how many were
// delivered.
func (s *Submitter) ProcessQueue(ctx context.Context) int {
	if s.transport == nil {
		return 0
	}

	pending, err := s.queue.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Cannot read offline queue")
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	s.log.Info().Int("pending", len(pending)).Msg("Sync pass started")
	delivered := 0
	for i := range pending {
		result := &pending[i]
		if _, err := s.deliver(ctx, result); err != nil {
			s.log.Warn().
				Err(err).
				Str("submission_id", result.SubmissionID).
				Msg("Sync retry failed, keeping queued")
			continue
		}
		if err := s.queue.Remove(ctx, result.SubmissionID); err != nil {
			s.log.Error().Err(err).Str("submission_id", result.SubmissionID).Msg("Cannot dequeue delivered result")
			continue
		}
		delivered++
	}

	s.notifyPending(ctx)
	s.log.Info().Int("delivered", delivered).Int("pending", len(pending)-delivered).Msg("Sync pass finished")
	return delivered
}

func (s *Submitter) enqueue(ctx context.Context, result *model.Result) {
	if err := s.queue.Enqueue(ctx, result); err != nil {
		s.log.Error().Err(err).Str("submission_id", result.SubmissionID).Msg("Cannot queue result")
		return
	}
	s.notifyPending(ctx)
}

func (s *Submitter) notifyPending(ctx context.Context) {
	if s.opts.OnPendingSyncs == nil {
		return
	}
	n, err := s.queue.Len(ctx)
	if err != nil {
		return
	}
	s.opts.OnPendingSyncs(n)
}

// saveLocal writes the result under its fallback key so an invigilator can
// always recover it from the machine itself.
func (s *Submitter) saveLocal(ctx context.Context, result *model.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		s.log.Error().Err(err).Msg("Cannot marshal result for local fallback")
		return
	}
	key := config.StorageKey.ResultFallbackKey(result.SubmissionID)
	if err := s.kv.Set(ctx, key, data); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Cannot save local result copy")
	}
}

// GenerateSubmissionID mints a collision-resistant submission identifier.
func GenerateSubmissionID() string {
	return fmt.Sprintf("SUB-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// WebhookTransport posts results as JSON to a fixed URL. The response body
// is discarded; any completed exchange counts as delivered.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport returns nil when url is empty.
func NewWebhookTransport(url string, client *http.Client) *WebhookTransport {
	if url == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebhookTransport{url: url, client: client}
}

func (t *WebhookTransport) Send(ctx context.Context, result *model.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()

	// Collection endpoints vary (spreadsheet hooks, LMS inboxes) and many
	// answer with opaque or empty bodies. Only transport failure is an error.
	return nil
}

package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/config"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/storage"
)

// Queue is the offline submission queue: results that could not be delivered
// wait here, keyed by submission id, until a sync pass drains them. The
// whole queue is one JSON document in the key-value store.
type Queue struct {
	mu  sync.Mutex
	kv  storage.KV
	key string
	log zerolog.Logger
}

func NewQueue(kv storage.KV, log zerolog.Logger) *Queue {
	return &Queue{
		kv:  kv,
		key: config.StorageKey.PendingSubmissionsKey(),
		log: log.With().Str("component", "offline_queue").Logger(),
	}
}

// Enqueue adds a result, replacing any entry with the same submission id so
// a retried submission never duplicates.
func (q *Queue) Enqueue(ctx context.Context, result *model.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range pending {
		if pending[i].SubmissionID == result.SubmissionID {
			pending[i] = *result
			replaced = true
			break
		}
	}
	if !replaced {
		pending = append(pending, *result)
	}

	if err := q.save(ctx, pending); err != nil {
		return err
	}
	q.log.Info().
		Str("submission_id", result.SubmissionID).
		Int("pending", len(pending)).
		Msg("Result queued for sync")
	return nil
}

// List returns the queued results in enqueue order.
func (q *Queue) List(ctx context.Context) ([]model.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Remove drops the entry with the given submission id. Unknown ids are a
// no-op.
func (q *Queue) Remove(ctx context.Context, submissionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return err
	}

	kept := pending[:0]
	for _, r := range pending {
		if r.SubmissionID != submissionID {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(pending) {
		return nil
	}
	if len(kept) == 0 {
		return q.kv.Delete(ctx, q.key)
	}
	return q.save(ctx, kept)
}

// Len reports the number of queued results.
func (q *Queue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (q *Queue) load(ctx context.Context) ([]model.Result, error) {
	data, err := q.kv.Get(ctx, q.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read offline queue: %w", err)
	}

	var pending []model.Result
	if err := json.Unmarshal(data, &pending); err != nil {
		// A mangled queue would block every future submission; drop it and
		// rely on the per-result local fallback copies.
		q.log.Error().Err(err).Msg("Discarding unreadable offline queue")
		_ = q.kv.Delete(ctx, q.key)
		return nil, nil
	}
	return pending, nil
}

func (q *Queue) save(ctx context.Context, pending []model.Result) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal offline queue: %w", err)
	}
	if err := q.kv.Set(ctx, q.key, data); err != nil {
		return fmt.Errorf("persist offline queue: %w", err)
	}
	return nil
}

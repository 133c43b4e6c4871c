package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/storage"
)

// ErrNoResume is returned when no resumable snapshot exists for a student.
var ErrNoResume = errors.New("session: nothing to resume")

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session: not found")

// Registry tracks live attempts by session id and by student identity. One
// student has at most one live attempt; starting again replaces it.
type Registry struct {
	mu sync.Mutex

	log       zerolog.Logger
	kv        storage.KV
	deps      Deps
	retention time.Duration

	sessions  map[string]*Controller
	byStudent map[string]string // student key -> session id
}

// NewRegistry builds a registry. deps is the template each new controller is
// cloned from; Store and OnFinished are filled in per attempt.
func NewRegistry(kv storage.KV, deps Deps) *Registry {
	retention := deps.FinishedRetention
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	return &Registry{
		log:       deps.Log.With().Str("component", "session_registry").Logger(),
		kv:        kv,
		deps:      deps,
		retention: retention,
		sessions:  make(map[string]*Controller),
		byStudent: make(map[string]string),
	}
}

// Start opens a new attempt for the student. A still-live attempt for the
// same student is aborted first, so the new paper is the only one counting.
func (r *Registry) Start(ctx context.Context, exam *model.ExamDefinition, student model.Student) (string, *Controller, error) {
	key := StudentKey(student)
	if key == "|" {
		return "", nil, fmt.Errorf("session: student name and seat number are required")
	}

	r.mu.Lock()
	if oldID, ok := r.byStudent[key]; ok {
		if old, ok := r.sessions[oldID]; ok {
			old.Abort()
			delete(r.sessions, oldID)
		}
		delete(r.byStudent, key)
	}
	r.mu.Unlock()

	sid := uuid.NewString()
	ctrl := r.newController(key, sid)

	if err := ctrl.Start(ctx, exam, student); err != nil {
		return "", nil, err
	}

	r.register(sid, key, ctrl)
	return sid, ctrl, nil
}

// ResumeOffer reports whether a resumable snapshot exists for the student,
// without touching it. A live in-memory attempt also counts as resumable.
func (r *Registry) ResumeOffer(ctx context.Context, student model.Student) (*ResumeOffer, error) {
	key := StudentKey(student)

	r.mu.Lock()
	if sid, ok := r.byStudent[key]; ok {
		if ctrl, ok := r.sessions[sid]; ok {
			state := ctrl.State()
			r.mu.Unlock()
			return &ResumeOffer{
				StudentName: state.Student.Name,
				Subject:     state.Exam.Metadata.Subject,
			}, nil
		}
	}
	r.mu.Unlock()

	offer, _, err := r.storeFor(key).LoadForResumeOffer(ctx)
	return offer, err
}

// Resume reattaches to the student's live attempt when one exists, otherwise
// restores from the saved snapshot. ErrNoResume when neither is available.
func (r *Registry) Resume(ctx context.Context, student model.Student) (string, *Controller, error) {
	key := StudentKey(student)

	r.mu.Lock()
	if sid, ok := r.byStudent[key]; ok {
		if ctrl, ok := r.sessions[sid]; ok {
			r.mu.Unlock()
			return sid, ctrl, nil
		}
	}
	r.mu.Unlock()

	offer, state, err := r.storeFor(key).LoadForResumeOffer(ctx)
	if err != nil {
		return "", nil, err
	}
	if offer == nil || state == nil {
		return "", nil, ErrNoResume
	}

	sid := uuid.NewString()
	ctrl := r.newController(key, sid)
	if err := ctrl.ResumeFrom(state); err != nil {
		return "", nil, err
	}

	r.register(sid, key, ctrl)
	return sid, ctrl, nil
}

// Get looks up a live attempt by session id.
func (r *Registry) Get(sessionID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

func (r *Registry) newController(studentKey, sid string) *Controller {
	deps := r.deps
	deps.Store = r.storeFor(studentKey)
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	deps.OnFinished = func() {
		r.release(sid, studentKey)
	}
	return NewController(deps)
}

func (r *Registry) storeFor(studentKey string) *Store {
	return NewStore(r.kv, studentKey, r.deps.Log)
}

func (r *Registry) register(sid, studentKey string, ctrl *Controller) {
	r.mu.Lock()
	r.sessions[sid] = ctrl
	r.byStudent[studentKey] = sid
	r.mu.Unlock()
}

// release frees the student slot once an attempt finishes. The session
// itself stays retrievable for the retention window so a retried submit
// call still finds its result, then it is evicted to keep the registry
// from growing across a long-running exam day.
func (r *Registry) release(sid, studentKey string) {
	r.mu.Lock()
	if r.byStudent[studentKey] == sid {
		delete(r.byStudent, studentKey)
	}
	r.mu.Unlock()

	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.sessions, sid)
		r.mu.Unlock()
	})
}

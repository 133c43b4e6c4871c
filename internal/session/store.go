package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/config"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/storage"
)

// ResumeOffer is the summary shown when a saved session is found, enough to
// render a resume prompt without committing to resume.
type ResumeOffer struct {
	StudentName string `json:"studentName"`
	Subject     string `json:"subject"`
}

// Store persists one active session snapshot per student key. Starting a new
// exam overwrites any prior snapshot under the same key; submission clears it.
type Store struct {
	kv  storage.KV
	key string
	log zerolog.Logger
}

// NewStore binds a store to one student's well-known snapshot key.
func NewStore(kv storage.KV, studentKey string, log zerolog.Logger) *Store {
	return &Store{
		kv:  kv,
		key: config.StorageKey.ActiveSessionKey(studentKey),
		log: log.With().Str("component", "session_store").Logger(),
	}
}

// StudentKey derives the snapshot key material for a student. Case-folded so
// a re-typed name still finds the saved attempt.
func StudentKey(s model.Student) string {
	return strings.ToLower(strings.TrimSpace(s.Name)) + "|" + strings.TrimSpace(s.SeatNumber)
}

// Save writes the full session state as one atomic snapshot. It is a no-op
// when there is no active exam or the session has already been submitted, so
// a finished session must never be resurrected by a late checkpoint.
func (s *Store) Save(ctx context.Context, state *model.SessionState) error {
	if state == nil || state.Exam == nil || state.Submitted {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist session state: %w", err)
	}
	return nil
}

// Clear removes the snapshot. Called the instant submission begins and on a
// fresh exam start.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}

// LoadForResumeOffer reads the snapshot and validates it structurally. It
// returns (nil, nil, nil) when there is nothing to offer; corrupted
// snapshots are cleared and treated the same way.
func (s *Store) LoadForResumeOffer(ctx context.Context) (*ResumeOffer, *model.SessionState, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read session snapshot: %w", err)
	}

	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Warn().Err(err).Msg("Discarding unparsable session snapshot")
		_ = s.kv.Delete(ctx, s.key)
		return nil, nil, nil
	}

	if state.Exam == nil || state.Exam.ExamID == "" || strings.TrimSpace(state.Student.Name) == "" {
		s.log.Warn().Msg("Discarding incomplete session snapshot")
		_ = s.kv.Delete(ctx, s.key)
		return nil, nil, nil
	}

	offer := &ResumeOffer{
		StudentName: state.Student.Name,
		Subject:     state.Exam.Metadata.Subject,
	}
	return offer, &state, nil
}

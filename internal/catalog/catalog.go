// Package catalog serves authored exam definitions to the session layer,
// either from a directory of JSON files or from Postgres.
package catalog

import (
	"context"
	"errors"

	"github.com/schoolcbt/exam-engine/internal/model"
)

// ErrExamNotFound is returned when no active exam matches the id.
var ErrExamNotFound = errors.New("catalog: exam not found")

// Source lists and loads exam definitions. List returns only exams open for
// taking, optionally narrowed to one class; Load returns the full
// definition including the question pool.
type Source interface {
	List(ctx context.Context, class string) ([]model.ExamSummary, error)
	Load(ctx context.Context, examID string) (*model.ExamDefinition, error)
}

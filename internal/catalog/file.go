package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/model"
)

// FileSource reads exam definitions from a directory of JSON files. The
// directory is rescanned on every call, so new exams can be dropped in
// while the server runs. An optional top-level "active" field (default
// true) withdraws an exam without deleting its file.
type FileSource struct {
	dir string
	log zerolog.Logger
}

func NewFileSource(dir string, log zerolog.Logger) *FileSource {
	return &FileSource{
		dir: dir,
		log: log.With().Str("component", "exam_catalog").Str("dir", dir).Logger(),
	}
}

type fileExam struct {
	model.ExamDefinition
	Active *bool `json:"active,omitempty"`
}

func (f *fileExam) active() bool {
	return f.Active == nil || *f.Active
}

func (s *FileSource) List(ctx context.Context, class string) ([]model.ExamSummary, error) {
	exams, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		if !e.active() {
			continue
		}
		if class != "" && e.Metadata.Class != "" && !strings.EqualFold(class, e.Metadata.Class) {
			continue
		}
		summaries = append(summaries, model.ExamSummary{
			ExamID:   e.ExamID,
			Metadata: e.Metadata,
			Active:   true,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ExamID < summaries[j].ExamID })
	return summaries, nil
}

func (s *FileSource) Load(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	exams, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range exams {
		if e.ExamID == examID && e.active() {
			def := e.ExamDefinition
			return &def, nil
		}
	}
	return nil, ErrExamNotFound
}

// scan parses every *.json file in the directory. Unreadable files are
// logged and skipped rather than taking the whole catalog down.
func (s *FileSource) scan(ctx context.Context) ([]fileExam, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read exam directory: %w", err)
	}

	var exams []fileExam
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable exam file")
			continue
		}

		var exam fileExam
		if err := json.Unmarshal(data, &exam); err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping malformed exam file")
			continue
		}
		if exam.ExamID == "" {
			s.log.Warn().Str("file", entry.Name()).Msg("Skipping exam file without examId")
			continue
		}
		exams = append(exams, exam)
	}
	return exams, nil
}

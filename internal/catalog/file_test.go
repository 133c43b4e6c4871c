package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeExam(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFileSourceListAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writeExam(t, dir, "math.json", `{
		"examId": "math-ss2",
		"metadata": {"title": "Midterm", "subject": "Mathematics", "class": "SS2"},
		"settings": {"duration": 30, "passMark": 50},
		"questions": [
			{"questionId": "q1", "questionText": "1+1?", "options": {"A": "1", "B": "2"}, "correctAnswer": "B", "marks": 1},
			{"questionId": "q2", "questionText": "2+2?", "options": {"A": "4", "B": "5"}, "correctAnswer": "A", "marks": 1}
		]
	}`)
	writeExam(t, dir, "physics.json", `{
		"examId": "physics-ss3",
		"metadata": {"title": "Finals", "subject": "Physics", "class": "SS3"},
		"settings": {"duration": 60, "passMark": 60},
		"questions": []
	}`)
	writeExam(t, dir, "withdrawn.json", `{
		"examId": "old-exam",
		"active": false,
		"metadata": {"title": "Old", "subject": "History"},
		"settings": {"duration": 10, "passMark": 40},
		"questions": []
	}`)
	writeExam(t, dir, "broken.json", `{{{`)
	writeExam(t, dir, "notes.txt", `not an exam`)

	src := NewFileSource(dir, zerolog.Nop())

	all, err := src.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d exams: %+v", len(all), all)
	}
	if all[0].ExamID != "math-ss2" || all[1].ExamID != "physics-ss3" {
		t.Fatalf("unexpected order: %+v", all)
	}

	ss2, err := src.List(ctx, "ss2")
	if err != nil {
		t.Fatalf("List(ss2): %v", err)
	}
	if len(ss2) != 1 || ss2[0].ExamID != "math-ss2" {
		t.Fatalf("class filter: %+v", ss2)
	}

	def, err := src.Load(ctx, "math-ss2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(def.Questions) != 2 || def.Questions[0].Text != "1+1?" {
		t.Fatalf("definition = %+v", def)
	}

	if _, err := src.Load(ctx, "old-exam"); err != ErrExamNotFound {
		t.Fatalf("withdrawn exam: %v", err)
	}
	if _, err := src.Load(ctx, "missing"); err != ErrExamNotFound {
		t.Fatalf("missing exam: %v", err)
	}
}

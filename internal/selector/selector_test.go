package selector

import (
	"math/rand"
	"testing"

	"github.com/schoolcbt/exam-engine/internal/model"
)

func makePool(hard, medium, easy int) []model.Question {
	var pool []model.Question
	add := func(n int, diff model.Difficulty) {
		for i := 0; i < n; i++ {
			id := string(diff) + "-" + string(rune('a'+i))
			pool = append(pool, model.Question{
				QuestionID:    id,
				Text:          "Q " + id,
				Options:       map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"},
				CorrectAnswer: "A",
				Difficulty:    diff,
			})
		}
	}
	add(hard, model.DifficultyHard)
	add(medium, model.DifficultyMedium)
	add(easy, model.DifficultyEasy)
	return pool
}

func countByDifficulty(qs []model.Question) map[model.Difficulty]int {
	counts := make(map[model.Difficulty]int)
	for _, q := range qs {
		counts[q.NormalizedDifficulty()]++
	}
	return counts
}

func TestSelectSubsetSize(t *testing.T) {
	pool := makePool(10, 10, 10)

	for limit := 1; limit < len(pool); limit++ {
		got := SelectSubset(pool, limit)
		if len(got) != limit {
			t.Fatalf("limit %d: got %d questions", limit, len(got))
		}

		seen := make(map[string]bool)
		for _, q := range got {
			if seen[q.QuestionID] {
				t.Fatalf("limit %d: duplicate question %s", limit, q.QuestionID)
			}
			seen[q.QuestionID] = true
		}
	}
}

func TestSelectSubsetBalancesDifficultyScore(t *testing.T) {
	cases := []struct {
		name               string
		hard, medium, easy int
		limit              int
	}{
		{"even pool", 10, 10, 10, 12},
		{"hard-heavy pool", 20, 5, 5, 10},
		{"easy-heavy pool", 3, 5, 22, 10},
		{"no medium", 15, 0, 15, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := makePool(tc.hard, tc.medium, tc.easy)

			totalScore := 0
			for _, q := range pool {
				totalScore += q.DifficultyScore()
			}
			target := float64(totalScore) / float64(len(pool)) * float64(tc.limit)

			got := SelectSubset(pool, tc.limit)
			if len(got) != tc.limit {
				t.Fatalf("got %d questions, want %d", len(got), tc.limit)
			}

			score := 0
			for _, q := range got {
				score += q.DifficultyScore()
			}

			// The greedy walk lands within one pick (max weight 3) of the
			// proportional target score.
			if diff := float64(score) - target; diff > 3 || diff < -3 {
				t.Errorf("subset score %d, target %.2f (mix %v)", score, target, countByDifficulty(got))
			}
		})
	}
}

func TestSelectSubsetInvalidLimit(t *testing.T) {
	pool := makePool(2, 3, 2)

	for _, limit := range []int{0, -1, len(pool), len(pool) + 5} {
		got := SelectSubset(pool, limit)
		if len(got) != len(pool) {
			t.Fatalf("limit %d: got %d questions, want all %d", limit, len(got), len(pool))
		}
		for i := range pool {
			if got[i].QuestionID != pool[i].QuestionID {
				t.Fatalf("limit %d: order changed at %d", limit, i)
			}
		}
	}
}

func TestSelectSubsetDeterministic(t *testing.T) {
	pool := makePool(6, 8, 6)
	a := SelectSubset(pool, 10)
	b := SelectSubset(pool, 10)
	for i := range a {
		if a[i].QuestionID != b[i].QuestionID {
			t.Fatalf("selection not deterministic at index %d", i)
		}
	}
}

func TestSelectSubsetUnknownDifficultyTreatedAsMedium(t *testing.T) {
	pool := []model.Question{
		{QuestionID: "q1", Difficulty: "EXTREME"},
		{QuestionID: "q2", Difficulty: ""},
		{QuestionID: "q3", Difficulty: "Medium"},
		{QuestionID: "q4", Difficulty: "hard"},
	}
	got := SelectSubset(pool, 2)
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
}

func TestShuffleSequenceIsBijection(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := makePool(5, 5, 5)
	original := make([]model.Question, len(pool))
	copy(original, pool)

	got := ShuffleSequence(rng, pool)

	if len(got) != len(pool) {
		t.Fatalf("got %d questions, want %d", len(got), len(pool))
	}
	for i := range pool {
		if pool[i].QuestionID != original[i].QuestionID {
			t.Fatalf("input mutated at index %d", i)
		}
	}

	seen := make(map[string]int)
	for _, q := range got {
		seen[q.QuestionID]++
	}
	for _, q := range pool {
		if seen[q.QuestionID] != 1 {
			t.Fatalf("question %s appears %d times", q.QuestionID, seen[q.QuestionID])
		}
	}
}

func TestShuffleOptionsPreservesCorrectness(t *testing.T) {
	q := model.Question{
		QuestionID:    "q1",
		Options:       map[string]string{"A": "red", "B": "green", "C": "blue", "D": "cyan"},
		CorrectAnswer: "C",
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := ShuffleOptions(rng, q)

		if len(got.Options) != len(q.Options) {
			t.Fatalf("option count changed: %d", len(got.Options))
		}
		if got.Options[got.CorrectAnswer] != "blue" {
			t.Fatalf("correct answer %q maps to %q, want blue", got.CorrectAnswer, got.Options[got.CorrectAnswer])
		}

		// Exactly one key maps to the originally-correct value.
		holders := 0
		values := make(map[string]bool)
		for _, v := range got.Options {
			values[v] = true
			if v == "blue" {
				holders++
			}
		}
		if holders != 1 {
			t.Fatalf("%d keys hold the correct value", holders)
		}
		for _, v := range q.Options {
			if !values[v] {
				t.Fatalf("option value %q lost in shuffle", v)
			}
		}
	}

	// Input untouched.
	if q.CorrectAnswer != "C" || q.Options["C"] != "blue" {
		t.Fatal("input question mutated")
	}
}

func TestShuffleOptionsThreeOptionQuestion(t *testing.T) {
	q := model.Question{
		QuestionID:    "q1",
		Options:       map[string]string{"A": "x", "B": "y", "C": "z"},
		CorrectAnswer: "B",
	}
	rng := rand.New(rand.NewSource(3))
	got := ShuffleOptions(rng, q)

	if len(got.Options) != 3 {
		t.Fatalf("option count changed: %d", len(got.Options))
	}
	if _, ok := got.Options["D"]; ok {
		t.Fatal("shuffle introduced key D on a 3-option question")
	}
	if got.Options[got.CorrectAnswer] != "y" {
		t.Fatalf("correct answer lost: %q -> %q", got.CorrectAnswer, got.Options[got.CorrectAnswer])
	}
}

func TestBuildPaperPipeline(t *testing.T) {
	exam := &model.ExamDefinition{
		ExamID:    "ex-1",
		Questions: makePool(10, 10, 10),
		Settings: model.ExamSettings{
			QuestionsPerStudent: 10,
			ShuffleQuestions:    true,
			ShuffleOptions:      true,
		},
	}

	rng := rand.New(rand.NewSource(99))
	paper := BuildPaper(rng, exam)

	if len(paper) != 10 {
		t.Fatalf("paper has %d questions, want 10", len(paper))
	}

	pool := make(map[string]model.Question)
	for _, q := range exam.Questions {
		pool[q.QuestionID] = q
	}
	for _, q := range paper {
		orig, ok := pool[q.QuestionID]
		if !ok {
			t.Fatalf("paper question %s not in pool", q.QuestionID)
		}
		if q.Options[q.CorrectAnswer] != orig.Options[orig.CorrectAnswer] {
			t.Fatalf("question %s: correct value changed after option shuffle", q.QuestionID)
		}
	}

	// Selection must not have consumed the exam's pool.
	if len(exam.Questions) != 30 {
		t.Fatalf("exam pool mutated: %d questions", len(exam.Questions))
	}
}

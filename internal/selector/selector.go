// Package selector builds a student's personalized paper from an exam's
// question pool: difficulty-balanced subset selection plus optional question
// and option shuffling. All functions are pure apart from the injected
// randomness source, and never mutate their inputs.
package selector

import (
	"math/rand"

	"github.com/schoolcbt/exam-engine/internal/model"
)

// SelectSubset picks limit questions from pool with a difficulty mix close to
// the pool's own. When limit is not a positive count below the pool size the
// full pool is returned unmodified, order preserved.
//
// The algorithm targets the pool's average difficulty score: at each step it
// pops from the hard bucket when the remaining average needed is >= 2.5, the
// easy bucket when <= 1.5, and otherwise medium, falling back hard then easy
// when the preferred bucket is empty. Buckets are consumed front-first so the
// same pool and limit always yield the same subset.
func SelectSubset(pool []model.Question, limit int) []model.Question {
	if limit <= 0 || limit >= len(pool) {
		out := make([]model.Question, len(pool))
		copy(out, pool)
		return out
	}

	totalScore := 0
	for _, q := range pool {
		totalScore += q.DifficultyScore()
	}
	targetTotal := float64(totalScore) / float64(len(pool)) * float64(limit)

	var hard, medium, easy []model.Question
	for _, q := range pool {
		switch q.NormalizedDifficulty() {
		case model.DifficultyHard:
			hard = append(hard, q)
		case model.DifficultyEasy:
			easy = append(easy, q)
		default:
			medium = append(medium, q)
		}
	}

	selected := make([]model.Question, 0, limit)
	currentScore := 0

	for len(selected) < limit {
		questionsNeeded := limit - len(selected)
		avgNeeded := (targetTotal - float64(currentScore)) / float64(questionsNeeded)

		var bucket *[]model.Question
		switch {
		case avgNeeded >= 2.5 && len(hard) > 0:
			bucket = &hard
		case avgNeeded <= 1.5 && len(easy) > 0:
			bucket = &easy
		case len(medium) > 0:
			bucket = &medium
		case len(hard) > 0:
			bucket = &hard
		case len(easy) > 0:
			bucket = &easy
		default:
			// All buckets exhausted; a short subset is accepted.
			return selected
		}

		q := (*bucket)[0]
		*bucket = (*bucket)[1:]
		selected = append(selected, q)
		currentScore += q.DifficultyScore()
	}

	return selected
}

// ShuffleSequence returns a uniform random permutation of qs (Fisher-Yates)
// in a fresh slice, leaving the input untouched.
func ShuffleSequence(rng *rand.Rand, qs []model.Question) []model.Question {
	out := make([]model.Question, len(qs))
	copy(out, qs)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ShuffleOptions randomly reassigns a question's option values across the
// fixed key alphabet and recomputes CorrectAnswer to the key now holding the
// originally-correct value. Questions with fewer than two options pass
// through unchanged.
func ShuffleOptions(rng *rand.Rand, q model.Question) model.Question {
	if len(q.Options) < 2 {
		return q
	}

	type pair struct{ key, value string }
	pairs := make([]pair, 0, len(q.Options))
	for _, key := range model.OptionKeys {
		if v, ok := q.Options[key]; ok {
			pairs = append(pairs, pair{key, v})
		}
	}

	for i := len(pairs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}

	shuffled := q
	shuffled.Options = make(map[string]string, len(pairs))
	keys := usedKeys(q.Options)
	for i, p := range pairs {
		newKey := keys[i]
		shuffled.Options[newKey] = p.value
		if p.key == q.CorrectAnswer {
			shuffled.CorrectAnswer = newKey
		}
	}

	return shuffled
}

// usedKeys returns the subset of the fixed alphabet present in options, in
// alphabet order, so a 3-option question keeps keys A..C after a shuffle.
func usedKeys(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for _, key := range model.OptionKeys {
		if _, ok := options[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// BuildPaper runs the full pipeline for one Student Paper: subset selection
// against QuestionsPerStudent, then question-order shuffle, then per-question
// option shuffle. Selection runs first so the difficulty balance is computed
// over the true candidate pool.
func BuildPaper(rng *rand.Rand, exam *model.ExamDefinition) []model.Question {
	paper := SelectSubset(exam.Questions, exam.Settings.QuestionsPerStudent)

	if exam.Settings.ShuffleQuestions {
		paper = ShuffleSequence(rng, paper)
	}

	if exam.Settings.ShuffleOptions {
		for i, q := range paper {
			paper[i] = ShuffleOptions(rng, q)
		}
	}

	return paper
}

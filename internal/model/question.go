package model

import "strings"

// OptionKeys is the fixed ordered alphabet of option keys.
var OptionKeys = []string{"A", "B", "C", "D"}

// Difficulty classifies a question for balanced subset selection.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a single multiple-choice question. Options maps option keys
// (drawn from OptionKeys) to option text; CorrectAnswer is always one of the
// present keys.
type Question struct {
	QuestionID    string            `json:"questionId"`
	Text          string            `json:"questionText"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"`
	Marks         int               `json:"marks,omitempty"`
	Difficulty    Difficulty        `json:"difficulty,omitempty"`
}

// MarksOrDefault returns the question's marks, defaulting to 1 when unset.
func (q Question) MarksOrDefault() int {
	if q.Marks < 1 {
		return 1
	}
	return q.Marks
}

// DifficultyScore maps difficulty to its selection weight: hard=3, medium=2,
// easy=1. Missing or unrecognized difficulties count as medium.
func (q Question) DifficultyScore() int {
	switch Difficulty(strings.ToLower(string(q.Difficulty))) {
	case DifficultyHard:
		return 3
	case DifficultyEasy:
		return 1
	default:
		return 2
	}
}

// NormalizedDifficulty lowercases the difficulty and folds unknown values to
// medium.
func (q Question) NormalizedDifficulty() Difficulty {
	switch d := Difficulty(strings.ToLower(string(q.Difficulty))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	default:
		return DifficultyMedium
	}
}

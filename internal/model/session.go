package model

import "time"

// Student identifies who is sitting the exam.
type Student struct {
	Name       string `json:"name"`
	SeatNumber string `json:"seatNumber"`
	Class      string `json:"class"`
}

// Timing records when an attempt started and finished.
type Timing struct {
	StartedAt       time.Time  `json:"startedAt"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	DurationAllowed int        `json:"durationAllowed"` // minutes
}

// SessionState is the single mutable snapshot of one exam attempt. It is
// owned exclusively by the session controller and persisted as one atomic
// write so the attempt can be resumed after a reload or crash.
//
// Exam carries the student's assigned paper, not the authored pool: resuming
// must hand back the exact same questions in the exact same order.
type SessionState struct {
	Student      Student           `json:"student"`
	Exam         *ExamDefinition   `json:"exam"`
	CurrentIndex int               `json:"currentQIndex"`
	Answers      map[string]string `json:"answers"` // questionId -> option key
	TimeLeft     int               `json:"timeLeft"` // seconds
	Timing       Timing            `json:"timing"`
	Submitted    bool              `json:"submitted"`
	Violations   []Violation       `json:"violations,omitempty"`
}

// Violation is one detected integrity breach during an active session.
type Violation struct {
	Type      ViolationType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
}

// ViolationType enumerates the integrity rules a student can break.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab-switch"
	ViolationWindowBlur     ViolationType = "window-blur"
	ViolationFullscreenExit ViolationType = "fullscreen-exit"
)

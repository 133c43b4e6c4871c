package model

import "time"

// SubmissionType records what triggered a submission.
type SubmissionType string

const (
	SubmissionManual        SubmissionType = "manual"
	SubmissionAutoTimeout   SubmissionType = "auto-timeout"
	SubmissionAutoViolation SubmissionType = "auto-violation"
)

// AnswerRecord is the per-question outcome in a Result. SelectedOption is nil
// when the question was left unanswered.
type AnswerRecord struct {
	QuestionID     string  `json:"questionId"`
	SelectedOption *string `json:"selectedOption"`
	IsCorrect      bool    `json:"isCorrect"`
	MarksAwarded   int     `json:"marksAwarded"`
}

// Scoring is the aggregate outcome of an attempt.
type Scoring struct {
	TotalQuestions      int     `json:"totalQuestions"`
	AttemptedQuestions  int     `json:"attemptedQuestions"`
	CorrectAnswers      int     `json:"correctAnswers"`
	WrongAnswers        int     `json:"wrongAnswers"`
	UnansweredQuestions int     `json:"unansweredQuestions"`
	TotalMarks          int     `json:"totalMarks"`
	ObtainedMarks       int     `json:"obtainedMarks"`
	Percentage          float64 `json:"percentage"`
	Passed              bool    `json:"passed"`
}

// ResultStudent is the student identity block of a Result, using the wire
// field names the webhook consumer expects.
type ResultStudent struct {
	FullName           string `json:"fullName"`
	RegistrationNumber string `json:"registrationNumber"`
	Class              string `json:"class"`
}

// ResultExam is the exam identity subset embedded in a Result.
type ResultExam struct {
	ExamID       string `json:"examId"`
	Title        string `json:"title"`
	Subject      string `json:"subject"`
	Class        string `json:"class"`
	Term         string `json:"term,omitempty"`
	AcademicYear string `json:"academicYear,omitempty"`
}

// ResultTiming extends Timing with the minutes actually spent.
type ResultTiming struct {
	StartedAt       time.Time  `json:"startedAt"`
	SubmittedAt     *time.Time `json:"submittedAt"`
	DurationAllowed int        `json:"durationAllowed"`
	DurationUsed    int        `json:"durationUsed"` // minutes, rounded up
}

// SubmissionMeta records how and when the client submitted.
type SubmissionMeta struct {
	Type            SubmissionType `json:"type"`
	ClientTimestamp time.Time      `json:"clientTimestamp"`
}

// IntegritySummary carries the violation tally into the Result.
type IntegritySummary struct {
	Violations   int         `json:"violations"`
	ViolationLog []Violation `json:"violationLog"`
}

// Result is the immutable outcome of one attempt, created once at
// submission and delivered to the configured webhook.
type Result struct {
	SubmissionID string           `json:"submissionId"`
	Version      string           `json:"version"`
	Student      ResultStudent    `json:"student"`
	Exam         ResultExam       `json:"exam"`
	Answers      []AnswerRecord   `json:"answers"`
	Scoring      Scoring          `json:"scoring"`
	Timing       ResultTiming     `json:"timing"`
	Submission   SubmissionMeta   `json:"submission"`
	Integrity    IntegritySummary `json:"integrity"`
}

package model

// ExamMetadata describes an exam as shown to the student before starting.
type ExamMetadata struct {
	Title        string `json:"title"`
	Subject      string `json:"subject"`
	Class        string `json:"class"`
	Term         string `json:"term,omitempty"`
	AcademicYear string `json:"academicYear,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// ExamSettings controls how a session behaves: timing, subset selection,
// shuffling, integrity enforcement and result delivery.
type ExamSettings struct {
	Duration              int     `json:"duration"` // minutes
	PassMark              float64 `json:"passMark"` // percent
	QuestionsPerStudent   int     `json:"questionsPerStudent,omitempty"`
	ShuffleQuestions      bool    `json:"shuffleQuestions"`
	ShuffleOptions        bool    `json:"shuffleOptions"`
	ShowResults           bool    `json:"showResults"`
	AutoSubmitOnViolation bool    `json:"autoSubmitOnViolation"`
	ViolationThreshold    int     `json:"violationThreshold"`
	WebhookURL            string  `json:"webhookUrl,omitempty"`
}

// ExamDefinition is the authoritative question set + settings for one exam,
// immutable during a session. Inside a SessionState, Questions holds the
// student's personalized paper rather than the full authored pool.
type ExamDefinition struct {
	ExamID    string       `json:"examId"`
	Metadata  ExamMetadata `json:"metadata"`
	Settings  ExamSettings `json:"settings"`
	Questions []Question   `json:"questions"`
}

// ExamSummary is a catalog listing entry (no questions attached).
type ExamSummary struct {
	ExamID   string       `json:"examId"`
	Metadata ExamMetadata `json:"metadata"`
	Active   bool         `json:"active"`
}

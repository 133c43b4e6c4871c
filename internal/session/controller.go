package session

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/examcheck"
	"github.com/schoolcbt/exam-engine/internal/integrity"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/selector"
)

// ResultVersion is stamped into every Result payload.
const ResultVersion = "1.0.0"

// ValidationError carries the field errors that blocked a session start.
type ValidationError struct {
	Errors []examcheck.FieldError
}

func (e *ValidationError) Error() string {
	return "exam definition failed validation:\n" + examcheck.Format(e.Errors)
}

type phase int

const (
	phaseNotStarted phase = iota
	phaseInProgress
	phaseSubmitting
	phaseSubmitted
)

// Deps are the collaborators injected into a Controller. One Controller (and
// one Monitor) exists per exam attempt.
type Deps struct {
	Log   zerolog.Logger
	Store *Store
	// Rand drives paper construction; tests pass a seeded source.
	Rand *rand.Rand
	// Clock defaults to time.Now.
	Clock func() time.Time
	// TickInterval defaults to one second.
	TickInterval time.Duration
	// NewSubmissionID mints the attempt's submission identifier.
	NewSubmissionID func() string
	// Deliver receives the finished Result; it runs on its own goroutine and
	// its outcome never blocks the student seeing their result screen.
	Deliver func(*model.Result)
	// OnActivity fires best-effort session-start telemetry.
	OnActivity func(studentName, subject string)
	// OnFinished runs after a submission completes (registry eviction hook).
	OnFinished func()
	// FinishedRetention is how long a finished attempt stays retrievable in
	// the registry for retried submit calls. Defaults to 15 minutes.
	FinishedRetention time.Duration
}

// Controller owns the session state machine for one exam attempt:
// not-started -> in-progress -> submitting -> submitted. It is the only
// writer of the SessionState; the monitor and submitter see read-only
// snapshots or derived data.
type Controller struct {
	mu sync.Mutex

	deps    Deps
	log     zerolog.Logger
	monitor *integrity.Monitor

	phase      phase
	state      *model.SessionState
	countdown  *Countdown
	result     *model.Result
	submitDone chan struct{}
}

// NewController creates an idle controller. Start or ResumeFrom must be
// called next.
func NewController(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = time.Second
	}
	log := deps.Log.With().Str("component", "session_controller").Logger()

	return &Controller{
		deps:    deps,
		log:     log,
		monitor: integrity.NewMonitor(deps.Log),
	}
}

// Start begins a fresh attempt: validates the definition, builds the student
// paper, arms the integrity monitor and starts the countdown. A definition
// that fails validation refuses to start with a *ValidationError.
func (c *Controller) Start(ctx context.Context, exam *model.ExamDefinition, student model.Student) error {
	if errs := examcheck.Validate(exam); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	c.mu.Lock()
	if c.phase != phaseNotStarted {
		c.mu.Unlock()
		return fmt.Errorf("session already started")
	}

	paper := selector.BuildPaper(c.deps.Rand, exam)

	sessionExam := *exam
	sessionExam.Questions = paper
	student.Class = firstNonEmpty(student.Class, exam.Metadata.Class)

	duration := exam.Settings.Duration
	c.state = &model.SessionState{
		Student:      student,
		Exam:         &sessionExam,
		CurrentIndex: 0,
		Answers:      make(map[string]string),
		TimeLeft:     duration * 60,
		Timing: model.Timing{
			StartedAt:       c.deps.Clock(),
			DurationAllowed: duration,
		},
	}
	c.phase = phaseInProgress
	c.mu.Unlock()

	// Fresh start invalidates whatever snapshot the key held before.
	_ = c.deps.Store.Clear(ctx)

	c.armMonitor(nil)
	c.startCountdown()
	c.saveState(ctx)

	if c.deps.OnActivity != nil {
		go c.deps.OnActivity(student.Name, exam.Metadata.Subject)
	}

	c.log.Info().
		Str("exam_id", exam.ExamID).
		Str("student", student.Name).
		Int("paper_size", len(paper)).
		Msg("Session started")
	return nil
}

// ResumeFrom reconstructs an attempt verbatim from a saved snapshot. The
// previously assigned paper is authoritative: no re-selection or re-shuffle
// happens here. Violation history recorded before the reload is restored
// into the fresh monitor instance.
func (c *Controller) ResumeFrom(snapshot *model.SessionState) error {
	if snapshot == nil || snapshot.Exam == nil {
		return fmt.Errorf("resume: snapshot is incomplete")
	}

	c.mu.Lock()
	if c.phase != phaseNotStarted {
		c.mu.Unlock()
		return fmt.Errorf("session already started")
	}

	c.state = snapshot
	if c.state.Answers == nil {
		c.state.Answers = make(map[string]string)
	}
	c.phase = phaseInProgress
	violations := append([]model.Violation(nil), snapshot.Violations...)
	c.mu.Unlock()

	c.armMonitor(violations)
	c.startCountdown()

	c.log.Info().
		Str("exam_id", snapshot.Exam.ExamID).
		Str("student", snapshot.Student.Name).
		Int("time_left", snapshot.TimeLeft).
		Int("violations_restored", len(violations)).
		Msg("Session resumed")
	return nil
}

func (c *Controller) armMonitor(history []model.Violation) {
	settings := c.state.Exam.Settings
	c.monitor.Activate(integrity.Config{
		ViolationThreshold:    settings.ViolationThreshold,
		AutoSubmitOnViolation: settings.AutoSubmitOnViolation,
	})
	c.monitor.Restore(history)

	c.monitor.OnViolation(func(model.Violation, int, int) {
		c.persistViolations()
	})
	c.monitor.OnAutoSubmit(func() {
		c.log.Warn().Msg("Violation threshold crossed, auto-submitting")
		c.Submit(true, model.SubmissionAutoViolation)
	})
}

func (c *Controller) startCountdown() {
	c.countdown = NewCountdown(c.deps.TickInterval, c.tick)
	c.countdown.Start()
}

// tick handles one countdown second: decrement, checkpoint every 5th second,
// and submission when time runs out. Persist happens after the decrement so
// a resumed session never gains time back.
func (c *Controller) tick() {
	c.mu.Lock()
	if c.phase != phaseInProgress {
		c.mu.Unlock()
		return
	}

	c.state.TimeLeft--
	timeLeft := c.state.TimeLeft
	c.mu.Unlock()

	if timeLeft <= 0 {
		c.Submit(true, model.SubmissionManual) // normalized to auto-timeout
		return
	}
	if timeLeft%5 == 0 {
		c.saveState(context.Background())
	}
}

// OnViolation registers an additional observer on this attempt's integrity
// monitor (the websocket feed subscribes here).
func (c *Controller) OnViolation(fn integrity.ViolationFunc) {
	c.monitor.OnViolation(fn)
}

// HandleSignal feeds one integrity signal into the monitor.
func (c *Controller) HandleSignal(sig integrity.Signal) {
	c.monitor.Observe(sig)
}

// Navigate moves the current question index. Out-of-range indexes are
// ignored.
func (c *Controller) Navigate(index int) {
	c.mu.Lock()
	if c.phase != phaseInProgress || index < 0 || index >= len(c.state.Exam.Questions) {
		c.mu.Unlock()
		return
	}
	c.state.CurrentIndex = index
	c.mu.Unlock()

	c.saveState(context.Background())
}

// SelectAnswer records the student's choice for a question; the last write
// wins. A no-op after submission.
func (c *Controller) SelectAnswer(questionID, optionKey string) {
	c.mu.Lock()
	if c.phase != phaseInProgress {
		c.mu.Unlock()
		return
	}
	if !c.paperHasQuestion(questionID) {
		c.mu.Unlock()
		return
	}
	c.state.Answers[questionID] = optionKey
	c.mu.Unlock()

	c.saveState(context.Background())
}

func (c *Controller) paperHasQuestion(questionID string) bool {
	for _, q := range c.state.Exam.Questions {
		if q.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Submit finalizes the attempt. The first call wins; later calls (double
// click, timeout racing a violation) wait if needed and return the same
// Result the first call built. The
// snapshot is cleared the instant submission begins, regardless of delivery
// outcome.
func (c *Controller) Submit(isAuto bool, subType model.SubmissionType) *model.Result {
	c.mu.Lock()
	if c.phase == phaseSubmitted {
		result := c.result
		c.mu.Unlock()
		return result
	}
	if c.phase == phaseSubmitting {
		// Another call is mid-submission. Wait for its result so every
		// caller sees the same submission.
		done := c.submitDone
		c.mu.Unlock()
		<-done
		c.mu.Lock()
		result := c.result
		c.mu.Unlock()
		return result
	}
	if c.phase != phaseInProgress {
		c.mu.Unlock()
		return nil
	}
	c.phase = phaseSubmitting
	c.submitDone = make(chan struct{})

	countdown := c.countdown
	c.mu.Unlock()

	if countdown != nil {
		countdown.Stop()
	}
	_ = c.deps.Store.Clear(context.Background())

	violationCount, violationLog := c.monitor.Snapshot()
	c.monitor.Destroy()

	c.mu.Lock()
	now := c.deps.Clock()
	c.state.Submitted = true
	c.state.Timing.SubmittedAt = &now

	finalType := subType
	if isAuto && subType == model.SubmissionManual {
		finalType = model.SubmissionAutoTimeout
	}

	result := c.buildResult(finalType, now, violationCount, violationLog)
	c.result = result
	c.phase = phaseSubmitted
	close(c.submitDone)
	c.mu.Unlock()

	if c.deps.Deliver != nil {
		go c.deps.Deliver(result)
	}
	if c.deps.OnFinished != nil {
		c.deps.OnFinished()
	}

	c.log.Info().
		Str("submission_id", result.SubmissionID).
		Str("type", string(finalType)).
		Float64("percentage", result.Scoring.Percentage).
		Msg("Session submitted")
	return result
}

// buildResult scores the paper and assembles the immutable Result. Caller
// holds c.mu.
func (c *Controller) buildResult(subType model.SubmissionType, now time.Time, violationCount int, violationLog []model.Violation) *model.Result {
	exam := c.state.Exam

	var (
		answers       = make([]model.AnswerRecord, 0, len(exam.Questions))
		obtained      int
		totalMarks    int
		correctCount  int
		wrongCount    int
		unansweredLen int
	)

	for _, q := range exam.Questions {
		marks := q.MarksOrDefault()
		totalMarks += marks

		record := model.AnswerRecord{QuestionID: q.QuestionID}
		selected, ok := c.state.Answers[q.QuestionID]
		if !ok || selected == "" {
			unansweredLen++
		} else {
			sel := selected
			record.SelectedOption = &sel
			if selected == q.CorrectAnswer {
				record.IsCorrect = true
				record.MarksAwarded = marks
				obtained += marks
				correctCount++
			} else {
				wrongCount++
			}
		}
		answers = append(answers, record)
	}

	percentage := 0.0
	if totalMarks > 0 {
		percentage = math.Round(float64(obtained)/float64(totalMarks)*10000) / 100
	}

	spentSeconds := c.state.Timing.DurationAllowed*60 - c.state.TimeLeft
	if spentSeconds < 0 {
		spentSeconds = 0
	}
	durationUsed := (spentSeconds + 59) / 60

	submissionID := ""
	if c.deps.NewSubmissionID != nil {
		submissionID = c.deps.NewSubmissionID()
	}

	return &model.Result{
		SubmissionID: submissionID,
		Version:      ResultVersion,
		Student: model.ResultStudent{
			FullName:           c.state.Student.Name,
			RegistrationNumber: c.state.Student.SeatNumber,
			Class:              c.state.Student.Class,
		},
		Exam: model.ResultExam{
			ExamID:       exam.ExamID,
			Title:        exam.Metadata.Title,
			Subject:      exam.Metadata.Subject,
			Class:        exam.Metadata.Class,
			Term:         exam.Metadata.Term,
			AcademicYear: exam.Metadata.AcademicYear,
		},
		Answers: answers,
		Scoring: model.Scoring{
			TotalQuestions:      len(exam.Questions),
			AttemptedQuestions:  len(exam.Questions) - unansweredLen,
			CorrectAnswers:      correctCount,
			WrongAnswers:        wrongCount,
			UnansweredQuestions: unansweredLen,
			TotalMarks:          totalMarks,
			ObtainedMarks:       obtained,
			Percentage:          percentage,
			Passed:              percentage >= exam.Settings.PassMark,
		},
		Timing: model.ResultTiming{
			StartedAt:       c.state.Timing.StartedAt,
			SubmittedAt:     c.state.Timing.SubmittedAt,
			DurationAllowed: c.state.Timing.DurationAllowed,
			DurationUsed:    durationUsed,
		},
		Submission: model.SubmissionMeta{
			Type:            subType,
			ClientTimestamp: now,
		},
		Integrity: model.IntegritySummary{
			Violations:   violationCount,
			ViolationLog: violationLog,
		},
	}
}

// Abort tears the attempt down without producing a result. Used when a
// fresh start replaces a still-live session for the same student. The
// snapshot is left to the caller.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.phase != phaseInProgress {
		c.mu.Unlock()
		return
	}
	c.phase = phaseSubmitted
	countdown := c.countdown
	c.mu.Unlock()

	if countdown != nil {
		countdown.Stop()
	}
	c.monitor.Destroy()
	c.log.Info().Msg("Session aborted")
}

// State returns a copy of the current session state for the HTTP layer.
func (c *Controller) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := *c.state
	snap.Answers = make(map[string]string, len(c.state.Answers))
	for k, v := range c.state.Answers {
		snap.Answers[k] = v
	}
	return snap
}

// Result returns the built result, or nil before submission.
func (c *Controller) Result() *model.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// persistViolations copies the monitor's log into the session state and
// checkpoints, so a reload cannot reset the strike count.
func (c *Controller) persistViolations() {
	_, log := c.monitor.Snapshot()

	c.mu.Lock()
	if c.phase != phaseInProgress {
		c.mu.Unlock()
		return
	}
	c.state.Violations = log
	c.mu.Unlock()

	c.saveState(context.Background())
}

func (c *Controller) saveState(ctx context.Context) {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return
	}
	snap := *c.state
	c.mu.Unlock()

	if err := c.deps.Store.Save(ctx, &snap); err != nil {
		c.log.Error().Err(err).Msg("Session checkpoint failed")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

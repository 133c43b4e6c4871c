package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/catalog"
	"github.com/schoolcbt/exam-engine/internal/examcheck"
	"github.com/schoolcbt/exam-engine/internal/integrity"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/response"
	"github.com/schoolcbt/exam-engine/internal/session"
	"github.com/schoolcbt/exam-engine/internal/submitter"
)

// SessionHandler drives the exam-taking lifecycle over HTTP: start, resume,
// answer, navigate, signal and submit.
type SessionHandler struct {
	registry  *session.Registry
	source    catalog.Source
	submitter *submitter.Submitter
	log       zerolog.Logger
}

func NewSessionHandler(registry *session.Registry, source catalog.Source, sub *submitter.Submitter, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		source:    source,
		submitter: sub,
		log:       log.With().Str("component", "session_handler").Logger(),
	}
}

type startSessionRequest struct {
	ExamID      string `json:"examId" binding:"required"`
	StudentName string `json:"studentName" binding:"required"`
	SeatNumber  string `json:"seatNumber" binding:"required"`
	Class       string `json:"class"`
}

type studentRef struct {
	StudentName string `json:"studentName" binding:"required"`
	SeatNumber  string `json:"seatNumber" binding:"required"`
}

// StartSession godoc
// POST /api/v1/sessions
// Builds the student's paper and opens a live session. A broken exam
// definition is refused with per-field detail.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if fields := examcheck.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	def, err := h.source.Load(c.Request.Context(), req.ExamID)
	if errors.Is(err, catalog.ErrExamNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	student := model.Student{
		Name:       req.StudentName,
		SeatNumber: req.SeatNumber,
		Class:      req.Class,
	}

	sid, ctrl, err := h.registry.Start(c.Request.Context(), def, student)
	if err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			fields := make(map[string]string, len(verr.Errors))
			for _, fe := range verr.Errors {
				fields[fe.Path] = fe.Message
			}
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrInvalidExam, fields)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	response.Success(c, http.StatusCreated, buildSessionView(sid, ctrl))
}

// ResumeOffer godoc
// GET /api/v1/sessions/resume-offer?studentName=Ada&seatNumber=042
// Tells the lobby whether a continue prompt should be shown. 200 with a
// null offer means a clean start.
func (h *SessionHandler) ResumeOffer(c *gin.Context) {
	student := model.Student{
		Name:       c.Query("studentName"),
		SeatNumber: c.Query("seatNumber"),
	}
	if student.Name == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	offer, err := h.registry.ResumeOffer(c.Request.Context(), student)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"offer": offer})
}

// ResumeSession godoc
// POST /api/v1/sessions/resume
// Reopens the saved attempt with its original paper, answers, clock and
// violation history.
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	var req studentRef
	if fields := examcheck.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student := model.Student{Name: req.StudentName, SeatNumber: req.SeatNumber}
	sid, ctrl, err := h.registry.Resume(c.Request.Context(), student)
	if errors.Is(err, session.ErrNoResume) {
		response.Fail(c, http.StatusNotFound, response.ErrNothingToResume)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, buildSessionView(sid, ctrl))
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, buildSessionView(c.Param("session_id"), ctrl))
}

type answerRequest struct {
	QuestionID     string `json:"questionId" binding:"required"`
	SelectedOption string `json:"selectedOption"`
}

// SaveAnswer godoc
// PUT /api/v1/sessions/:session_id/answer
// Last write wins; an empty selectedOption clears the answer.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var req answerRequest
	if fields := examcheck.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl.SelectAnswer(req.QuestionID, req.SelectedOption)
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

type positionRequest struct {
	Index *int `json:"index" binding:"required"`
}

// SavePosition godoc
// PUT /api/v1/sessions/:session_id/position
func (h *SessionHandler) SavePosition(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var req positionRequest
	if fields := examcheck.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl.Navigate(*req.Index)
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// PushSignal godoc
// POST /api/v1/sessions/:session_id/signals
// Feeds one environment signal into the integrity monitor.
func (h *SessionHandler) PushSignal(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var sig integrity.Signal
	if fields := examcheck.Bind(c, &sig); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl.HandleSignal(sig)

	state := ctrl.State()
	response.Success(c, http.StatusOK, gin.H{
		"violations": len(state.Violations),
		"submitted":  ctrl.Result() != nil,
	})
}

// SubmitSession godoc
// POST /api/v1/sessions/:session_id/submit
// Finalizes the attempt. Safe to call twice; the first submission's result
// is returned again. Scoring detail is withheld when the exam says so.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	showResults := ctrl.State().Exam.Settings.ShowResults
	result := ctrl.Submit(false, model.SubmissionManual)
	if result == nil {
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		return
	}

	response.Success(c, http.StatusOK, buildResultView(result, showResults))
}

// Sync godoc
// POST /api/v1/sync
// Runs one pass over the offline queue.
func (h *SessionHandler) Sync(c *gin.Context) {
	delivered := h.submitter.ProcessQueue(c.Request.Context())
	pending, err := h.submitter.Queue().Len(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"delivered": delivered,
		"pending":   pending,
	})
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Controller, bool) {
	ctrl, err := h.registry.Get(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return nil, false
	}
	return ctrl, true
}

// ────────────────────────────────────────────────────────────────────────────
// View models
// ────────────────────────────────────────────────────────────────────────────

// paperQuestion is a question as the student sees it: no correct answer, no
// difficulty tag.
type paperQuestion struct {
	QuestionID string            `json:"questionId"`
	Text       string            `json:"questionText"`
	Options    map[string]string `json:"options"`
	Marks      int               `json:"marks"`
}

type sessionView struct {
	SessionID    string             `json:"sessionId"`
	Student      model.Student      `json:"student"`
	ExamID       string             `json:"examId"`
	Metadata     model.ExamMetadata `json:"metadata"`
	Questions    []paperQuestion    `json:"questions"`
	CurrentIndex int                `json:"currentQIndex"`
	Answers      map[string]string  `json:"answers"`
	TimeLeft     int                `json:"timeLeft"`
	Violations   int                `json:"violations"`
}

func buildSessionView(sid string, ctrl *session.Controller) sessionView {
	state := ctrl.State()

	questions := make([]paperQuestion, 0, len(state.Exam.Questions))
	for _, q := range state.Exam.Questions {
		questions = append(questions, paperQuestion{
			QuestionID: q.QuestionID,
			Text:       q.Text,
			Options:    q.Options,
			Marks:      q.MarksOrDefault(),
		})
	}

	return sessionView{
		SessionID:    sid,
		Student:      state.Student,
		ExamID:       state.Exam.ExamID,
		Metadata:     state.Exam.Metadata,
		Questions:    questions,
		CurrentIndex: state.CurrentIndex,
		Answers:      state.Answers,
		TimeLeft:     state.TimeLeft,
		Violations:   len(state.Violations),
	}
}

type resultView struct {
	SubmissionID string                  `json:"submissionId"`
	Submission   model.SubmissionMeta    `json:"submission"`
	Timing       model.ResultTiming      `json:"timing"`
	Scoring      *model.Scoring          `json:"scoring,omitempty"`
	Answers      []model.AnswerRecord    `json:"answers,omitempty"`
	Integrity    *model.IntegritySummary `json:"integrity,omitempty"`
}

// buildResultView hides scoring and per-question correctness when the exam
// is configured not to show results at the seat.
func buildResultView(result *model.Result, showResults bool) resultView {
	view := resultView{
		SubmissionID: result.SubmissionID,
		Submission:   result.Submission,
		Timing:       result.Timing,
	}
	if showResults {
		scoring := result.Scoring
		integrity := result.Integrity
		view.Scoring = &scoring
		view.Answers = result.Answers
		view.Integrity = &integrity
	}
	return view
}

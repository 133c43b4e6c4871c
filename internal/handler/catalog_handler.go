package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schoolcbt/exam-engine/internal/catalog"
	"github.com/schoolcbt/exam-engine/internal/model"
	"github.com/schoolcbt/exam-engine/internal/response"
)

// CatalogHandler serves the pre-exam surface: which exams can be taken and
// what a student should know before starting one. Question content never
// leaves this handler.
type CatalogHandler struct {
	source catalog.Source
}

func NewCatalogHandler(source catalog.Source) *CatalogHandler {
	return &CatalogHandler{source: source}
}

// ListExams godoc
// GET /api/v1/exams?class=SS2
// Returns the exams currently open for taking, optionally for one class.
func (h *CatalogHandler) ListExams(c *gin.Context) {
	exams, err := h.source.List(c.Request.Context(), c.Query("class"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// examDetail is the pre-start view of one exam: everything a student needs
// to decide and nothing that would spoil the paper.
type examDetail struct {
	ExamID        string             `json:"examId"`
	Metadata      model.ExamMetadata `json:"metadata"`
	Duration      int                `json:"duration"`
	PassMark      float64            `json:"passMark"`
	QuestionCount int                `json:"questionCount"`
	ShowResults   bool               `json:"showResults"`
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
func (h *CatalogHandler) GetExam(c *gin.Context) {
	def, err := h.source.Load(c.Request.Context(), c.Param("exam_id"))
	if errors.Is(err, catalog.ErrExamNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	questionCount := len(def.Questions)
	if n := def.Settings.QuestionsPerStudent; n > 0 && n < questionCount {
		questionCount = n
	}

	response.Success(c, http.StatusOK, examDetail{
		ExamID:        def.ExamID,
		Metadata:      def.Metadata,
		Duration:      def.Settings.Duration,
		PassMark:      def.Settings.PassMark,
		QuestionCount: questionCount,
		ShowResults:   def.Settings.ShowResults,
	})
}

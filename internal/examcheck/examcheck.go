// Package examcheck validates exam definitions before a session may start,
// and translates request binding errors for the HTTP layer. Validation
// failures are reported as {path, message} pairs shown to the user verbatim.
package examcheck

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/schoolcbt/exam-engine/internal/model"
)

// FieldError is one validation failure at a JSON path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// trans is the singleton English translator for binding errors.
var trans ut.Translator

// Setup registers the validator with English translations on Gin's binding
// engine. Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)
	}
}

// Bind binds and validates the request body into dst. Returns nil on success
// or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return translateErrors(err)
	}
	return nil
}

func translateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) && trans != nil {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Validate checks an exam definition's structural integrity. An empty slice
// means the exam is safe to start.
func Validate(exam *model.ExamDefinition) []FieldError {
	var errs []FieldError
	add := func(path, message string) {
		errs = append(errs, FieldError{Path: path, Message: message})
	}

	if exam == nil {
		return []FieldError{{Path: "$", Message: "exam definition is missing"}}
	}

	if strings.TrimSpace(exam.ExamID) == "" {
		add("$.examId", "examId is required")
	}
	if strings.TrimSpace(exam.Metadata.Title) == "" {
		add("$.metadata.title", "title is required")
	}
	if strings.TrimSpace(exam.Metadata.Subject) == "" {
		add("$.metadata.subject", "subject is required")
	}
	if exam.Settings.Duration < 1 {
		add("$.settings.duration", "duration must be at least 1 minute")
	}
	if exam.Settings.PassMark < 0 || exam.Settings.PassMark > 100 {
		add("$.settings.passMark", "passMark must be between 0 and 100")
	}
	if len(exam.Questions) == 0 {
		add("$.questions", "exam must contain at least one question")
	}

	validKeys := make(map[string]bool, len(model.OptionKeys))
	for _, k := range model.OptionKeys {
		validKeys[k] = true
	}

	seen := make(map[string]bool, len(exam.Questions))
	for i, q := range exam.Questions {
		path := fmt.Sprintf("$.questions[%d]", i)

		if strings.TrimSpace(q.QuestionID) == "" {
			add(path+".questionId", "questionId is required")
		} else if seen[q.QuestionID] {
			add(path+".questionId", fmt.Sprintf("duplicate questionId %q", q.QuestionID))
		} else {
			seen[q.QuestionID] = true
		}

		if strings.TrimSpace(q.Text) == "" {
			add(path+".questionText", "question text is required")
		}
		if len(q.Options) < 2 {
			add(path+".options", "question needs at least 2 options")
		}
		for key := range q.Options {
			if !validKeys[key] {
				alphabet := model.OptionKeys[0] + ".." + model.OptionKeys[len(model.OptionKeys)-1]
				add(path+".options", fmt.Sprintf("option key %q outside the %s alphabet", key, alphabet))
			}
		}
		if q.CorrectAnswer == "" {
			add(path+".correctAnswer", "correctAnswer is required")
		} else if _, ok := q.Options[q.CorrectAnswer]; !ok {
			add(path+".correctAnswer", fmt.Sprintf("correctAnswer %q is not one of the options", q.CorrectAnswer))
		}
		if q.Marks < 0 {
			add(path+".marks", "marks must be a positive integer")
		}
	}

	return errs
}

// Format renders the errors as the multi-line user-facing message.
func Format(errs []FieldError) string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return strings.Join(lines, "\n")
}

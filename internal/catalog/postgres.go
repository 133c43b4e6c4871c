package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/schoolcbt/exam-engine/internal/model"
)

// PostgresSource reads exam definitions from the exams table, where each
// row holds the full definition as jsonb plus an active flag.
type PostgresSource struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPostgresSource(pool *pgxpool.Pool, log zerolog.Logger) *PostgresSource {
	return &PostgresSource{
		pool: pool,
		log:  log.With().Str("component", "exam_catalog").Str("backend", "postgres").Logger(),
	}
}

func (s *PostgresSource) List(ctx context.Context, class string) ([]model.ExamSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT definition FROM exams WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	var summaries []model.ExamSummary
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan exam row: %w", err)
		}

		var def model.ExamDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			s.log.Warn().Err(err).Msg("Skipping malformed exam definition row")
			continue
		}
		if class != "" && def.Metadata.Class != "" && !strings.EqualFold(class, def.Metadata.Class) {
			continue
		}
		summaries = append(summaries, model.ExamSummary{
			ExamID:   def.ExamID,
			Metadata: def.Metadata,
			Active:   true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam rows: %w", err)
	}
	return summaries, nil
}

func (s *PostgresSource) Load(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT definition FROM exams WHERE id = $1 AND active`, examID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam %s: %w", examID, err)
	}

	var def model.ExamDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode exam %s: %w", examID, err)
	}
	return &def, nil
}

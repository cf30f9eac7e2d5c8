// Package intake owns the submission write path: payload validation,
// normalization, language tagging, and fingerprinting before a submission
// is stored for detection.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/globaltime"
	"garden.school/lessonbank/internal/langdetect"
	"garden.school/lessonbank/internal/match"
	payloadschema "garden.school/lessonbank/schema"
)

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

type SubmissionRecord struct {
	SubmissionID   int64             `json:"-"`
	SubmissionUUID string            `json:"submission_id"`
	Title          string            `json:"title"`
	Language       string            `json:"language"`
	Fingerprint    match.Fingerprint `json:"-"`
	Embedding      []float64         `json:"-"`
	Metadata       match.Metadata    `json:"metadata"`
	Summary        string            `json:"-"`
	Content        string            `json:"-"`
}

// Accept validates and stores one submission payload. The payload's declared
// language wins when present; otherwise the content is run through detection.
// The stored fingerprint is the same one Detect recomputes, so detection and
// intake can never disagree about a submission's identity.
func (s *Service) Accept(ctx context.Context, payload json.RawMessage) (SubmissionRecord, error) {
	if s == nil || s.pool == nil {
		return SubmissionRecord{}, fmt.Errorf("intake service is not initialized")
	}

	submission, err := payloadschema.ValidateLessonSubmissionPayload(payload)
	if err != nil {
		return SubmissionRecord{}, fmt.Errorf("validate submission payload: %w", err)
	}

	title := strings.TrimSpace(submission.Title)
	summary := strings.TrimSpace(submission.Summary)
	content := strings.TrimSpace(submission.Content)

	language := ""
	if submission.Language != nil {
		language = langdetect.NormalizeCode(*submission.Language)
	}
	if language == "" {
		detectionInput := content
		if detectionInput == "" {
			detectionInput = title + " " + summary
		}
		language = langdetect.DetectISO6391(detectionInput)
	}

	fingerprint := match.ComputeFingerprint(content, match.FallbackFields{
		Title:       title,
		Summary:     summary,
		GradeLevels: submission.Metadata.GradeLevels,
	})

	metadataJSON, err := json.Marshal(submission.Metadata)
	if err != nil {
		return SubmissionRecord{}, fmt.Errorf("marshal submission metadata: %w", err)
	}

	record := SubmissionRecord{
		Title:       title,
		Summary:     summary,
		Content:     content,
		Language:    language,
		Fingerprint: fingerprint,
		Embedding:   submission.Embedding,
		Metadata:    submission.Metadata,
	}

	const q = `
INSERT INTO catalog.submissions (
	title,
	normalized_title,
	summary,
	content,
	metadata,
	source_document,
	content_language,
	fingerprint_kind,
	fingerprint_digest,
	status,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, 'submitted', $10, $10)
RETURNING submission_id, submission_uuid::text
`
	now := globaltime.UTC()
	row := s.pool.QueryRow(ctx, q,
		title,
		match.NormalizeText(title),
		summary,
		content,
		string(metadataJSON),
		submission.SourceDocument,
		language,
		string(fingerprint.Kind),
		fingerprint.Digest,
		now,
	)
	if err := row.Scan(&record.SubmissionID, &record.SubmissionUUID); err != nil {
		return SubmissionRecord{}, fmt.Errorf("insert submission: %w", err)
	}

	s.logger.Info().
		Int64("submission_id", record.SubmissionID).
		Str("language", language).
		Str("fingerprint_kind", string(fingerprint.Kind)).
		Msg("submission accepted")

	return record, nil
}

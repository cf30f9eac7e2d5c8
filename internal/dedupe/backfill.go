package dedupe

import (
	"context"
	"encoding/json"
	"fmt"

	"garden.school/lessonbank/internal/globaltime"
	"garden.school/lessonbank/internal/match"
)

type BackfillOptions struct {
	Limit     int
	BatchSize int
}

type BackfillResult struct {
	Processed int
	Updated   int
	Skipped   int
}

// BackfillFingerprints computes fingerprints for lessons that predate
// fingerprinting or were imported without one. Update order is stable by
// lesson_id and the pass is idempotent.
func (s *Service) BackfillFingerprints(ctx context.Context, options BackfillOptions) (BackfillResult, error) {
	if s == nil || s.pool == nil {
		return BackfillResult{}, fmt.Errorf("dedupe service is not initialized")
	}

	limit := options.Limit
	if limit <= 0 {
		limit = 1000
	}
	batchSize := options.BatchSize
	if batchSize <= 0 || batchSize > limit {
		batchSize = min(200, limit)
	}

	const selectQ = `
SELECT
	l.lesson_id,
	l.title,
	l.summary,
	l.content,
	l.metadata
FROM catalog.lessons l
WHERE l.fingerprint_digest IS NULL
ORDER BY l.lesson_id
LIMIT $1
`
	const updateQ = `
UPDATE catalog.lessons
SET fingerprint_kind = $2,
	fingerprint_digest = $3,
	normalized_title = $4,
	updated_at = $5
WHERE lesson_id = $1
  AND fingerprint_digest IS NULL
`

	var result BackfillResult
	for result.Processed < limit {
		remaining := limit - result.Processed
		rows, err := s.pool.Query(ctx, selectQ, min(batchSize, remaining))
		if err != nil {
			return result, fmt.Errorf("select lessons for fingerprint backfill: %w", err)
		}

		type pending struct {
			lessonID int64
			title    string
			summary  string
			content  string
			metadata []byte
		}
		batch := make([]pending, 0, batchSize)
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.lessonID, &p.title, &p.summary, &p.content, &p.metadata); err != nil {
				rows.Close()
				return result, fmt.Errorf("scan backfill lesson: %w", err)
			}
			batch = append(batch, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return result, fmt.Errorf("iterate backfill lessons: %w", err)
		}
		rows.Close()

		if len(batch) == 0 {
			break
		}

		for _, p := range batch {
			result.Processed++

			var metadata match.Metadata
			if len(p.metadata) > 0 {
				if err := json.Unmarshal(p.metadata, &metadata); err != nil {
					result.Skipped++
					s.logger.Warn().Err(err).Int64("lesson_id", p.lessonID).
						Msg("skipping fingerprint backfill for lesson with malformed metadata")
					continue
				}
			}

			fingerprint := match.ComputeFingerprint(p.content, match.FallbackFields{
				Title:       p.title,
				Summary:     p.summary,
				GradeLevels: metadata.GradeLevels,
			})

			tag, err := s.pool.Exec(ctx, updateQ,
				p.lessonID,
				string(fingerprint.Kind),
				fingerprint.Digest,
				match.NormalizeText(p.title),
				globaltime.UTC(),
			)
			if err != nil {
				return result, fmt.Errorf("update fingerprint lesson_id=%d: %w", p.lessonID, err)
			}
			if tag.RowsAffected() == 1 {
				result.Updated++
			} else {
				result.Skipped++
			}
		}
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("fingerprint backfill pass completed")

	return result, nil
}

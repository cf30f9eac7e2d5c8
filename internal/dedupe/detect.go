package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/globaltime"
	"garden.school/lessonbank/internal/match"
)

// vectorQueryTimeout bounds the nearest-neighbor round-trip. A timeout
// degrades detection to lexical/attribute-only scoring instead of failing
// the request.
const vectorQueryTimeout = 5 * time.Second

type DetectRequest struct {
	SubmissionID int64
	Title        string
	Summary      string
	Content      string
	Metadata     match.Metadata
	Embedding    []float64
}

type Subscores struct {
	Lexical          float64  `json:"lexical"`
	Semantic         *float64 `json:"semantic,omitempty"`
	AttributeOverlap float64  `json:"attribute_overlap"`
}

type Duplicate struct {
	LessonID       int64                `json:"-"`
	CandidateID    string               `json:"candidate_id"`
	Title          string               `json:"title"`
	CombinedScore  float64              `json:"combined_score"`
	Classification match.Classification `json:"classification"`
	Subscores      Subscores            `json:"subscores"`
}

// Diagnostics are observability outputs of one detection run; they describe
// the run, never change its results.
type Diagnostics struct {
	CandidatesScored   int                `json:"candidates_scored"`
	CandidatesReturned int                `json:"candidates_returned"`
	CandidatesSkipped  int                `json:"candidates_skipped"`
	SemanticDegraded   bool               `json:"semantic_degraded"`
	ScorePercentiles   map[string]float64 `json:"score_percentiles,omitempty"`
}

type DetectResult struct {
	Fingerprint match.Fingerprint
	Duplicates  []Duplicate
	Diagnostics Diagnostics
}

type candidateLesson struct {
	LessonID          int64
	LessonUUID        string
	Title             string
	MetadataJSON      []byte
	FingerprintKind   string
	FingerprintDigest string
	Cosine            *float64
}

// Detect scores one pending submission against the existing catalog. It is a
// stateless, request-scoped computation: safe to run arbitrarily in parallel
// across submissions. Evidence persistence is best-effort; a persistence
// failure is logged and reported in diagnostics but never fails the call.
func (s *Service) Detect(ctx context.Context, req DetectRequest) (DetectResult, error) {
	if s == nil || s.pool == nil {
		return DetectResult{}, fmt.Errorf("dedupe service is not initialized")
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		return DetectResult{}, fmt.Errorf("%w: title or content is required", ErrInvalidInput)
	}

	fingerprint := match.ComputeFingerprint(req.Content, match.FallbackFields{
		Title:       req.Title,
		Summary:     req.Summary,
		GradeLevels: req.Metadata.GradeLevels,
	})

	result := DetectResult{Fingerprint: fingerprint}

	candidates := make(map[int64]*candidateLesson)
	if err := s.loadLexicalCandidates(ctx, req.SubmissionID, candidates); err != nil {
		return DetectResult{}, err
	}
	if err := s.loadFingerprintCandidates(ctx, fingerprint, candidates); err != nil {
		return DetectResult{}, err
	}

	if len(req.Embedding) > 0 {
		if err := s.loadSemanticCandidates(ctx, req.Embedding, candidates); err != nil {
			// Degraded mode: detection proceeds on lexical and attribute
			// signals alone.
			s.logger.Warn().Err(err).Int64("submission_id", req.SubmissionID).
				Msg("semantic candidate query failed; scoring without semantic signal")
			result.Diagnostics.SemanticDegraded = true
		}
	}

	scored := make([]Duplicate, 0, len(candidates))
	prefilterScores := make([]float64, 0, len(candidates))
	for _, candidate := range candidates {
		duplicate, err := s.scoreCandidate(fingerprint, req, candidate)
		if err != nil {
			// One malformed candidate must not abort the rest of the run.
			result.Diagnostics.CandidatesSkipped++
			s.logger.Warn().Err(err).Int64("lesson_id", candidate.LessonID).
				Msg("skipping candidate with malformed metadata")
			continue
		}
		prefilterScores = append(prefilterScores, duplicate.CombinedScore)
		if s.cfg.Surfaced(match.Evidence{Combined: duplicate.CombinedScore, Classification: duplicate.Classification}) {
			scored = append(scored, duplicate)
		}
	}
	result.Diagnostics.CandidatesScored = len(prefilterScores)
	result.Diagnostics.ScorePercentiles = scorePercentiles(prefilterScores)

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].CombinedScore != scored[j].CombinedScore {
			return scored[i].CombinedScore > scored[j].CombinedScore
		}
		return scored[i].LessonID < scored[j].LessonID
	})
	if s.cfg.MaxResults > 0 && len(scored) > s.cfg.MaxResults {
		scored = scored[:s.cfg.MaxResults]
	}
	result.Duplicates = scored
	result.Diagnostics.CandidatesReturned = len(scored)

	if req.SubmissionID > 0 {
		s.persistEvidence(ctx, req.SubmissionID, scored)
		s.persistDetectionEvent(ctx, req.SubmissionID, fingerprint, result)
	}

	s.logger.Info().
		Int64("submission_id", req.SubmissionID).
		Str("fingerprint_kind", string(fingerprint.Kind)).
		Int("candidates_scored", result.Diagnostics.CandidatesScored).
		Int("candidates_returned", result.Diagnostics.CandidatesReturned).
		Int("candidates_skipped", result.Diagnostics.CandidatesSkipped).
		Bool("semantic_degraded", result.Diagnostics.SemanticDegraded).
		Msg("detection run completed")

	return result, nil
}

func (s *Service) scoreCandidate(fingerprint match.Fingerprint, req DetectRequest, candidate *candidateLesson) (Duplicate, error) {
	var metadata match.Metadata
	if len(candidate.MetadataJSON) > 0 {
		if err := json.Unmarshal(candidate.MetadataJSON, &metadata); err != nil {
			return Duplicate{}, fmt.Errorf("unmarshal candidate metadata lesson_id=%d: %w", candidate.LessonID, err)
		}
	}

	candidateFingerprint := match.ParseFingerprint(candidate.FingerprintKind, candidate.FingerprintDigest)
	exact := fingerprint.Kind == match.FingerprintContent && fingerprint.Equal(candidateFingerprint)

	scores := match.Scores{
		Lexical:          s.cfg.TitleSimilarity(req.Title, candidate.Title),
		AttributeOverlap: s.cfg.AttributeOverlap(req.Metadata, metadata),
		Semantic:         candidate.Cosine,
	}
	evidence := s.cfg.ScorePair(exact, scores)

	return Duplicate{
		LessonID:       candidate.LessonID,
		CandidateID:    candidate.LessonUUID,
		Title:          candidate.Title,
		CombinedScore:  evidence.Combined,
		Classification: evidence.Classification,
		Subscores: Subscores{
			Lexical:          evidence.Lexical,
			Semantic:         evidence.Semantic,
			AttributeOverlap: evidence.AttributeOverlap,
		},
	}, nil
}

func (s *Service) loadLexicalCandidates(ctx context.Context, submissionID int64, candidates map[int64]*candidateLesson) error {
	const q = `
SELECT
	l.lesson_id,
	l.lesson_uuid::text,
	l.title,
	l.metadata,
	COALESCE(l.fingerprint_kind, ''),
	COALESCE(l.fingerprint_digest, '')
FROM catalog.lessons l
WHERE l.status = 'active'
ORDER BY l.updated_at DESC
LIMIT $1
`
	rows, err := s.pool.Query(ctx, q, lexicalCandidateLimit)
	if err != nil {
		return fmt.Errorf("query lexical candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c candidateLesson
		if err := rows.Scan(&c.LessonID, &c.LessonUUID, &c.Title, &c.MetadataJSON, &c.FingerprintKind, &c.FingerprintDigest); err != nil {
			return fmt.Errorf("scan lexical candidate: %w", err)
		}
		candidates[c.LessonID] = &c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate lexical candidates submission_id=%d: %w", submissionID, err)
	}
	return nil
}

// loadFingerprintCandidates pulls exact-fingerprint matches into the pool so
// an exact duplicate is surfaced even when it fell outside the lexical
// candidate window.
func (s *Service) loadFingerprintCandidates(ctx context.Context, fingerprint match.Fingerprint, candidates map[int64]*candidateLesson) error {
	if fingerprint.IsZero() {
		return nil
	}

	const q = `
SELECT
	l.lesson_id,
	l.lesson_uuid::text,
	l.title,
	l.metadata,
	COALESCE(l.fingerprint_kind, ''),
	COALESCE(l.fingerprint_digest, '')
FROM catalog.lessons l
WHERE l.status = 'active'
  AND l.fingerprint_kind = $1
  AND l.fingerprint_digest = $2
`
	rows, err := s.pool.Query(ctx, q, string(fingerprint.Kind), fingerprint.Digest)
	if err != nil {
		return fmt.Errorf("query fingerprint candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c candidateLesson
		if err := rows.Scan(&c.LessonID, &c.LessonUUID, &c.Title, &c.MetadataJSON, &c.FingerprintKind, &c.FingerprintDigest); err != nil {
			return fmt.Errorf("scan fingerprint candidate: %w", err)
		}
		if existing, ok := candidates[c.LessonID]; ok {
			existing.FingerprintKind = c.FingerprintKind
			existing.FingerprintDigest = c.FingerprintDigest
			continue
		}
		candidates[c.LessonID] = &c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate fingerprint candidates: %w", err)
	}
	return nil
}

func (s *Service) loadSemanticCandidates(ctx context.Context, embedding []float64, candidates map[int64]*candidateLesson) error {
	vectorLiteral, err := toVectorLiteral(embedding)
	if err != nil {
		return fmt.Errorf("build vector literal: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, vectorQueryTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(queryCtx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin semantic query tx: %w", err)
	}
	defer func() { _ = tx.Rollback(queryCtx) }()

	if _, err := tx.Exec(queryCtx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", semanticSearchEF)); err != nil {
		return fmt.Errorf("set hnsw.ef_search: %w", err)
	}

	const q = `
SELECT
	l.lesson_id,
	l.lesson_uuid::text,
	l.title,
	l.metadata,
	COALESCE(l.fingerprint_kind, ''),
	COALESCE(l.fingerprint_digest, ''),
	(1 - (le.embedding <=> $1::vector))::DOUBLE PRECISION AS cosine
FROM catalog.lesson_embeddings le
JOIN catalog.lessons l ON l.lesson_id = le.lesson_id
WHERE l.status = 'active'
  AND le.model_name = $2
  AND le.model_version = $3
  AND (1 - (le.embedding <=> $1::vector)) >= $4
ORDER BY le.embedding <=> $1::vector ASC
LIMIT $5
`
	rows, err := tx.Query(queryCtx, q, vectorLiteral, s.modelName, s.modelVersion, s.cfg.SemanticFloor, s.cfg.SemanticCandidateLimit)
	if err != nil {
		return fmt.Errorf("query semantic candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c candidateLesson
		var cosine float64
		if err := rows.Scan(&c.LessonID, &c.LessonUUID, &c.Title, &c.MetadataJSON, &c.FingerprintKind, &c.FingerprintDigest, &cosine); err != nil {
			return fmt.Errorf("scan semantic candidate: %w", err)
		}
		c.Cosine = floatPtr(cosine)
		if existing, ok := candidates[c.LessonID]; ok {
			existing.Cosine = c.Cosine
			continue
		}
		candidates[c.LessonID] = &c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate semantic candidates: %w", err)
	}

	return tx.Commit(queryCtx)
}

func (s *Service) persistEvidence(ctx context.Context, submissionID int64, duplicates []Duplicate) {
	const q = `
INSERT INTO catalog.similarity_evidence (
	submission_id,
	lesson_id,
	lexical_score,
	attribute_score,
	semantic_score,
	combined_score,
	classification,
	match_details,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
ON CONFLICT (submission_id, lesson_id) DO NOTHING
`
	now := globaltime.UTC()
	for _, duplicate := range duplicates {
		details, err := json.Marshal(map[string]any{
			"exact":        duplicate.Classification == match.ClassificationExact,
			"candidate_id": duplicate.CandidateID,
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("submission_id", submissionID).Msg("marshal evidence details failed")
			continue
		}
		_, err = s.pool.Exec(ctx, q,
			submissionID,
			duplicate.LessonID,
			duplicate.Subscores.Lexical,
			duplicate.Subscores.AttributeOverlap,
			duplicate.Subscores.Semantic,
			duplicate.CombinedScore,
			string(duplicate.Classification),
			string(details),
			now,
		)
		if err != nil {
			s.logger.Warn().Err(err).
				Int64("submission_id", submissionID).
				Int64("lesson_id", duplicate.LessonID).
				Msg("persist similarity evidence failed; detection result still returned")
		}
	}
}

func (s *Service) persistDetectionEvent(ctx context.Context, submissionID int64, fingerprint match.Fingerprint, result DetectResult) {
	const q = `
INSERT INTO catalog.detection_events (
	submission_id,
	fingerprint_kind,
	exact_match,
	semantic_degraded,
	candidates_scored,
	candidates_returned,
	candidates_skipped,
	score_percentiles,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
`
	exactMatch := false
	for _, duplicate := range result.Duplicates {
		if duplicate.Classification == match.ClassificationExact {
			exactMatch = true
			break
		}
	}

	var percentilesJSON []byte
	if result.Diagnostics.ScorePercentiles != nil {
		encoded, err := json.Marshal(result.Diagnostics.ScorePercentiles)
		if err == nil {
			percentilesJSON = encoded
		}
	}

	_, err := s.pool.Exec(ctx, q,
		submissionID,
		string(fingerprint.Kind),
		exactMatch,
		result.Diagnostics.SemanticDegraded,
		result.Diagnostics.CandidatesScored,
		result.Diagnostics.CandidatesReturned,
		result.Diagnostics.CandidatesSkipped,
		nullableJSONString(percentilesJSON),
		globaltime.UTC(),
	)
	if err != nil {
		s.logger.Warn().Err(err).Int64("submission_id", submissionID).Msg("persist detection event failed")
	}
}

func nullableJSONString(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

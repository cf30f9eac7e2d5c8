package dedupe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/globaltime"
)

const (
	DefaultEmbeddingEndpoint       = "http://127.0.0.1:8844/embed"
	DefaultEmbeddingBatchSize      = 32
	DefaultEmbeddingMaxLength      = 512
	DefaultEmbeddingRequestTimeout = 45 * time.Second
)

type EmbedOptions struct {
	Limit          int
	BatchSize      int
	Endpoint       string
	MaxLength      int
	RequestTimeout time.Duration
}

type EmbedResult struct {
	Processed int
	Embedded  int
	Skipped   int
	Failed    int
}

type embeddingPendingLesson struct {
	LessonID int64
	Title    string
	Summary  string
	Content  string
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	ElapsedMS  *float64    `json:"elapsed_ms"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedPending fills in embeddings for active lessons that have none under
// the service's model identity. Batches are requested from the external
// embedding service and inserted idempotently; re-running after a partial
// failure picks up where it stopped.
func (s *Service) EmbedPending(ctx context.Context, options EmbedOptions) (EmbedResult, error) {
	if s == nil || s.pool == nil {
		return EmbedResult{}, fmt.Errorf("dedupe service is not initialized")
	}

	opts := normalizeEmbedOptions(options)
	if opts.Limit <= 0 {
		return EmbedResult{}, nil
	}

	var result EmbedResult
	for result.Processed < opts.Limit {
		remaining := opts.Limit - result.Processed
		batchSize := min(opts.BatchSize, remaining)

		lessons, err := selectPendingEmbeddingLessons(ctx, s.pool, s.modelName, s.modelVersion, batchSize)
		if err != nil {
			return result, err
		}
		if len(lessons) == 0 {
			break
		}

		texts := make([]string, 0, len(lessons))
		for _, lesson := range lessons {
			texts = append(texts, embeddingInput(lesson))
		}

		vectors, _, err := requestEmbeddings(ctx, opts, texts)
		if err != nil {
			return result, err
		}
		if len(vectors) != len(lessons) {
			return result, fmt.Errorf("embedding response count mismatch: requested=%d returned=%d", len(lessons), len(vectors))
		}

		for i, lesson := range lessons {
			result.Processed++

			vectorLiteral, err := toVectorLiteral(vectors[i])
			if err != nil {
				result.Failed++
				return result, fmt.Errorf("lesson_id=%d invalid embedding vector: %w", lesson.LessonID, err)
			}

			inserted, err := insertLessonEmbedding(
				ctx,
				s.pool,
				lesson.LessonID,
				s.modelName,
				s.modelVersion,
				vectorLiteral,
				opts.Endpoint,
				globaltime.UTC(),
			)
			if err != nil {
				result.Failed++
				return result, err
			}

			if inserted {
				result.Embedded++
			} else {
				result.Skipped++
			}
		}
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("embedded", result.Embedded).
		Int("skipped", result.Skipped).
		Msg("embedding backfill pass completed")

	return result, nil
}

func normalizeEmbedOptions(opts EmbedOptions) EmbedOptions {
	normalized := opts
	if normalized.Limit < 0 {
		normalized.Limit = 0
	}
	if normalized.BatchSize <= 0 {
		normalized.BatchSize = DefaultEmbeddingBatchSize
	}
	if normalized.BatchSize > normalized.Limit && normalized.Limit > 0 {
		normalized.BatchSize = normalized.Limit
	}
	normalized.Endpoint = normalizeEmbeddingEndpoint(normalized.Endpoint)
	if normalized.MaxLength <= 0 {
		normalized.MaxLength = DefaultEmbeddingMaxLength
	}
	if normalized.RequestTimeout <= 0 {
		normalized.RequestTimeout = DefaultEmbeddingRequestTimeout
	}
	return normalized
}

func selectPendingEmbeddingLessons(
	ctx context.Context,
	pool *db.Pool,
	modelName string,
	modelVersion string,
	limit int,
) ([]embeddingPendingLesson, error) {
	const q = `
SELECT
	l.lesson_id,
	l.title,
	l.summary,
	l.content
FROM catalog.lessons l
WHERE l.status = 'active'
  AND NOT EXISTS (
	SELECT 1
	FROM catalog.lesson_embeddings le
	WHERE le.lesson_id = l.lesson_id
	  AND le.model_name = $1
	  AND le.model_version = $2
)
ORDER BY l.lesson_id
LIMIT $3
`

	rows, err := pool.Query(ctx, q, modelName, modelVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending lessons for embedding: %w", err)
	}
	defer rows.Close()

	lessons := make([]embeddingPendingLesson, 0, limit)
	for rows.Next() {
		var lesson embeddingPendingLesson
		if err := rows.Scan(&lesson.LessonID, &lesson.Title, &lesson.Summary, &lesson.Content); err != nil {
			return nil, fmt.Errorf("scan pending embedding lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending embedding lessons: %w", err)
	}
	return lessons, nil
}

func insertLessonEmbedding(
	ctx context.Context,
	pool *db.Pool,
	lessonID int64,
	modelName string,
	modelVersion string,
	vectorLiteral string,
	endpoint string,
	now time.Time,
) (bool, error) {
	const q = `
INSERT INTO catalog.lesson_embeddings (
	lesson_id,
	model_name,
	model_version,
	embedding,
	embedded_at,
	service_endpoint
)
VALUES ($1, $2, $3, $4::vector, $5, $6)
ON CONFLICT (lesson_id, model_name, model_version) DO NOTHING
`

	tag, err := pool.Exec(ctx, q, lessonID, modelName, modelVersion, vectorLiteral, now, endpoint)
	if err != nil {
		return false, fmt.Errorf("insert lesson embedding lesson_id=%d: %w", lessonID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// embeddingInput concatenates title, summary and content. Title first so
// truncation at the service's max length keeps the strongest signal.
func embeddingInput(lesson embeddingPendingLesson) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{lesson.Title, lesson.Summary, lesson.Content} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n\n")
}

func requestEmbeddings(ctx context.Context, opts EmbedOptions, texts []string) ([][]float64, *float64, error) {
	payload := embedRequest{
		Texts:     texts,
		MaxLength: opts.MaxLength,
	}

	parsedEndpoint, err := url.Parse(opts.Endpoint)
	if err == nil && strings.HasSuffix(parsedEndpoint.Path, "/v1/embeddings") {
		payload = embedRequest{
			Input: texts,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, parsed.ElapsedMS, fmt.Errorf("embedding response missing vectors")
	}

	return vectors, parsed.ElapsedMS, nil
}

func normalizeEmbeddingEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultEmbeddingEndpoint
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/embed"
	}
	return parsed.String()
}

// Package dedupe implements the duplicate detection and resolution engine:
// per-submission scoring against the catalog, corpus-wide group building,
// and the human-authorized archival workflow.
package dedupe

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/match"
)

const (
	lexicalCandidateLimit = 300
	semanticSearchEF      = 64

	embeddingVectorDimensions = 1024
)

var (
	// ErrInvalidInput marks malformed detection or resolution requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidDecision marks a resolution decision set that violates the
	// keep/archive constraints.
	ErrInvalidDecision = errors.New("invalid resolution decision")
	// ErrGroupAlreadyDecided is returned when a group already has a terminal
	// resolved or dismissed outcome.
	ErrGroupAlreadyDecided = errors.New("group already decided")
	// ErrMemberNotActive is returned when a referenced group member is no
	// longer in the active record set.
	ErrMemberNotActive = errors.New("group member is not active")
)

type Service struct {
	pool         *db.Pool
	logger       zerolog.Logger
	cfg          match.Config
	modelName    string
	modelVersion string
}

func NewService(pool *db.Pool, logger zerolog.Logger, cfg match.Config, modelName, modelVersion string) *Service {
	return &Service{
		pool:         pool,
		logger:       logger,
		cfg:          cfg,
		modelName:    strings.TrimSpace(modelName),
		modelVersion: strings.TrimSpace(modelVersion),
	}
}

// Config returns the scoring configuration the service was built with.
func (s *Service) Config() match.Config {
	return s.cfg
}

func toVectorLiteral(values []float64) (string, error) {
	if len(values) != embeddingVectorDimensions {
		return "", fmt.Errorf("expected %d dimensions, got %d", embeddingVectorDimensions, len(values))
	}

	var builder strings.Builder
	builder.Grow(len(values) * 8)
	builder.WriteByte('[')
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return "", fmt.Errorf("vector has non-finite value at index %d", i)
		}
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

// scorePercentiles summarizes a score distribution for diagnostics output.
func scorePercentiles(scores []float64) map[string]float64 {
	if len(scores) == 0 {
		return nil
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	return map[string]float64{
		"p50": percentile(sorted, 0.50),
		"p90": percentile(sorted, 0.90),
		"max": sorted[len(sorted)-1],
	}
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func floatPtr(v float64) *float64 {
	p := new(float64)
	*p = v
	return p
}

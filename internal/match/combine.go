package match

// Classification is the discrete confidence bucket derived from a combined
// score.
type Classification string

const (
	ClassificationExact  Classification = "exact"
	ClassificationHigh   Classification = "high"
	ClassificationMedium Classification = "medium"
	ClassificationLow    Classification = "low"
)

// Scores holds the sub-scores for one (candidate, target) pair. Semantic is
// nil when no embedding was available; the combiner then runs in degraded
// lexical/attribute-only mode rather than failing.
type Scores struct {
	Lexical          float64
	AttributeOverlap float64
	Semantic         *float64
}

// Evidence is the scored outcome for one pair.
type Evidence struct {
	Lexical          float64
	AttributeOverlap float64
	Semantic         *float64
	Combined         float64
	Classification   Classification
	ExactFingerprint bool
}

// ScorePair fuses the signals for one pair. An exact content-fingerprint
// match short-circuits to combined 1.0 and classification "exact"; it is
// never filtered out downstream regardless of the other scores.
func (c Config) ScorePair(exactFingerprint bool, scores Scores) Evidence {
	if exactFingerprint {
		return Evidence{
			Lexical:          scores.Lexical,
			AttributeOverlap: scores.AttributeOverlap,
			Semantic:         scores.Semantic,
			Combined:         1.0,
			Classification:   ClassificationExact,
			ExactFingerprint: true,
		}
	}

	combined := c.Combine(scores)
	return Evidence{
		Lexical:          scores.Lexical,
		AttributeOverlap: scores.AttributeOverlap,
		Semantic:         scores.Semantic,
		Combined:         combined,
		Classification:   c.Classify(combined),
	}
}

// Combine computes the weighted fusion of the sub-scores. Semantic evidence
// is weighted highest because it is the only signal robust to paraphrasing
// and reformatting.
func (c Config) Combine(scores Scores) float64 {
	var combined float64
	if scores.Semantic != nil {
		combined = c.LexicalWeightWithEmbedding*scores.Lexical +
			c.AttributeWeightWithEmbedding*scores.AttributeOverlap +
			c.SemanticWeight**scores.Semantic
	} else {
		combined = c.LexicalWeightNoEmbedding*scores.Lexical +
			c.AttributeWeightNoEmbedding*scores.AttributeOverlap
	}

	switch {
	case combined < 0:
		return 0
	case combined > 1:
		return 1
	default:
		return combined
	}
}

// Classify buckets a combined score.
func (c Config) Classify(combined float64) Classification {
	switch {
	case combined >= c.HighThreshold:
		return ClassificationHigh
	case combined >= c.MediumThreshold:
		return ClassificationMedium
	default:
		return ClassificationLow
	}
}

// Surfaced reports whether evidence survives the results floor. Exact
// matches bypass the floor unconditionally.
func (c Config) Surfaced(e Evidence) bool {
	if e.Classification == ClassificationExact {
		return true
	}
	return e.Combined >= c.ResultFloor
}

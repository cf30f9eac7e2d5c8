package match

import (
	"math"
	"testing"
)

func TestScorePairExactShortCircuit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	evidence := cfg.ScorePair(true, Scores{Lexical: 0.1, AttributeOverlap: 0.0})
	if evidence.Combined != 1.0 {
		t.Fatalf("expected exact match to score 1.0, got %f", evidence.Combined)
	}
	if evidence.Classification != ClassificationExact {
		t.Fatalf("expected exact classification, got %q", evidence.Classification)
	}
	if !cfg.Surfaced(evidence) {
		t.Fatalf("expected exact match to bypass the results floor")
	}
}

func TestCombineWithAndWithoutEmbedding(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	semantic := 0.9
	withEmbedding := cfg.Combine(Scores{Lexical: 0.6, AttributeOverlap: 0.5, Semantic: &semantic})
	expected := 0.3*0.6 + 0.2*0.5 + 0.5*0.9
	if math.Abs(withEmbedding-expected) > 1e-9 {
		t.Fatalf("unexpected combined score with embedding: got %f want %f", withEmbedding, expected)
	}

	degraded := cfg.Combine(Scores{Lexical: 0.6, AttributeOverlap: 0.5})
	expectedDegraded := 0.7*0.6 + 0.3*0.5
	if math.Abs(degraded-expectedDegraded) > 1e-9 {
		t.Fatalf("unexpected degraded combined score: got %f want %f", degraded, expectedDegraded)
	}
}

func TestClassifyThresholds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if got := cfg.Classify(0.85); got != ClassificationHigh {
		t.Fatalf("expected 0.85 to classify high, got %q", got)
	}
	if got := cfg.Classify(0.70); got != ClassificationMedium {
		t.Fatalf("expected 0.70 to classify medium, got %q", got)
	}
	if got := cfg.Classify(0.69); got != ClassificationLow {
		t.Fatalf("expected 0.69 to classify low, got %q", got)
	}
}

func TestFloorEnforcement(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	low := cfg.ScorePair(false, Scores{Lexical: 0.5, AttributeOverlap: 0.2})
	if low.Combined >= cfg.ResultFloor {
		t.Fatalf("test setup expects a sub-floor score, got %f", low.Combined)
	}
	if cfg.Surfaced(low) {
		t.Fatalf("expected sub-floor non-exact evidence to be discarded")
	}

	exact := cfg.ScorePair(true, Scores{Lexical: 0.1})
	if !cfg.Surfaced(exact) {
		t.Fatalf("expected exact evidence to survive regardless of sub-scores")
	}
}

func TestGardenSalsaScenario(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	lexical := cfg.TitleSimilarity("Garden Salsa", "Garden Salsa Fresca")
	attrs := cfg.AttributeOverlap(
		Metadata{GradeLevels: []string{"3", "4"}},
		Metadata{GradeLevels: []string{"3", "4"}},
	)

	evidence := cfg.ScorePair(false, Scores{Lexical: lexical, AttributeOverlap: attrs})
	if !cfg.Surfaced(evidence) {
		t.Fatalf("expected Garden Salsa pair above the %0.2f floor, got %f", cfg.ResultFloor, evidence.Combined)
	}
	if evidence.Classification != ClassificationMedium && evidence.Classification != ClassificationHigh {
		t.Fatalf("expected medium or high classification, got %q (combined %f)", evidence.Classification, evidence.Combined)
	}
}

package match

import (
	"math"
	"testing"
)

func TestTitleSimilaritySymmetryAndIdentity(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	left := "Garden Salsa"
	right := "Garden Salsa Fresca"

	ab := cfg.TitleSimilarity(left, right)
	ba := cfg.TitleSimilarity(right, left)
	if ab != ba {
		t.Fatalf("expected symmetric similarity: %f vs %f", ab, ba)
	}

	if got := cfg.TitleSimilarity(left, left); got != 1.0 {
		t.Fatalf("expected identical titles to score 1.0, got %f", got)
	}
}

func TestTitleSimilarityEmptyTitles(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if got := cfg.TitleSimilarity("", ""); got != 1.0 {
		t.Fatalf("expected empty-vs-empty to score 1.0, got %f", got)
	}
	if got := cfg.TitleSimilarity("", "Garden Salsa"); got != 0.0 {
		t.Fatalf("expected empty-vs-non-empty to score 0.0, got %f", got)
	}
}

func TestTitleSimilarityStopWordsAndPunctuation(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	got := cfg.TitleSimilarity("Salsa from the Garden!", "salsa garden")
	if got != 1.0 {
		t.Fatalf("expected stop words and punctuation to be ignored, got %f", got)
	}
}

func TestTitleSimilarityLengthPenalty(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	// "Salsa" shares its only token with the long title, but the length-ratio
	// term must keep it well below a true near-duplicate.
	short := cfg.TitleSimilarity("Salsa", "Salsa Tomatoes Onions Cilantro Lime Harvest")
	near := cfg.TitleSimilarity("Garden Salsa Fresca", "Garden Salsa")
	if short >= near {
		t.Fatalf("expected length penalty to rank short trivial match (%f) below near-duplicate (%f)", short, near)
	}

	// One shared token out of five, equal set sizes.
	expected := 0.8*(1.0/9.0) + 0.2*(5.0/5.0)
	got := cfg.TitleSimilarity("alpha beta gamma delta epsilon", "alpha two three four five")
	if math.Abs(got-expected) > 1e-9 {
		t.Fatalf("unexpected blended score: got %f want %f", got, expected)
	}
}

package match

import "testing"

func TestComputeFingerprintDeterminism(t *testing.T) {
	t.Parallel()

	first := ComputeFingerprint("Chop tomatoes and onions", FallbackFields{})
	second := ComputeFingerprint("chop   tomatoes\nand onions  ", FallbackFields{})
	if first.Kind != FingerprintContent {
		t.Fatalf("expected content fingerprint, got %q", first.Kind)
	}
	if !first.Equal(second) {
		t.Fatalf("expected normalized variants to fingerprint identically: %q vs %q", first.Digest, second.Digest)
	}

	other := ComputeFingerprint("chop tomatoes and garlic", FallbackFields{})
	if first.Equal(other) {
		t.Fatalf("expected distinct contents to produce distinct digests")
	}
}

func TestComputeFingerprintMetadataFallback(t *testing.T) {
	t.Parallel()

	fallback := FallbackFields{
		Title:       "Garden Salsa",
		Summary:     "A fresh salsa lesson",
		GradeLevels: []string{"3", "4"},
	}

	fp := ComputeFingerprint("   ", fallback)
	if fp.Kind != FingerprintMetadata {
		t.Fatalf("expected metadata fallback fingerprint, got %q", fp.Kind)
	}
	if fp.Digest == "" {
		t.Fatalf("expected non-empty digest")
	}

	again := ComputeFingerprint("", fallback)
	if !fp.Equal(again) {
		t.Fatalf("expected fallback fingerprint to be deterministic")
	}

	content := ComputeFingerprint("garden salsa\na fresh salsa lesson\n3\n4", FallbackFields{})
	if content.Equal(fp) {
		t.Fatalf("metadata fallback must never collide with a content fingerprint of the same text")
	}
}

func TestParseFingerprint(t *testing.T) {
	t.Parallel()

	fp := ParseFingerprint("content", "abc123")
	if fp.Kind != FingerprintContent || fp.Digest != "abc123" {
		t.Fatalf("unexpected parsed fingerprint: %+v", fp)
	}
	if got := ParseFingerprint("bogus", "abc123"); !got.IsZero() {
		t.Fatalf("expected unknown kind to parse as zero fingerprint, got %+v", got)
	}
	if got := ParseFingerprint("content", ""); !got.IsZero() {
		t.Fatalf("expected empty digest to parse as zero fingerprint, got %+v", got)
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	if got := NormalizeText("  Mixed\tCASE \n text "); got != "mixed case text" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if got := NormalizeText("\t \n"); got != "" {
		t.Fatalf("expected blank input to normalize to empty, got %q", got)
	}
}

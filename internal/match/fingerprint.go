package match

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// FingerprintKind distinguishes a true content digest from the weaker
// metadata-only fallback computed when a record has no content.
type FingerprintKind string

const (
	FingerprintContent  FingerprintKind = "content"
	FingerprintMetadata FingerprintKind = "metadata"
)

// Fingerprint is the exact-duplicate key for a record. Two records with equal
// content-kind fingerprints are exact duplicates regardless of every other
// signal; metadata-kind equality is only a strong hint.
type Fingerprint struct {
	Kind   FingerprintKind
	Digest string
}

func (f Fingerprint) IsZero() bool {
	return f.Kind == "" && f.Digest == ""
}

// Equal reports whether two fingerprints have the same kind and digest.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return !f.IsZero() && f.Kind == other.Kind && f.Digest == other.Digest
}

// FallbackFields are the identity-bearing metadata fields hashed when a
// record carries no content.
type FallbackFields struct {
	Title       string
	Summary     string
	GradeLevels []string
}

// ComputeFingerprint is pure and deterministic: same input always yields the
// same output. Content is case-folded, whitespace-collapsed, and trimmed
// before hashing; an empty result falls back to hashing the metadata fields.
func ComputeFingerprint(content string, fallback FallbackFields) Fingerprint {
	normalized := NormalizeText(content)
	if normalized != "" {
		return Fingerprint{
			Kind:   FingerprintContent,
			Digest: hexDigest(normalized),
		}
	}

	parts := make([]string, 0, 3+len(fallback.GradeLevels))
	parts = append(parts, NormalizeText(fallback.Title), NormalizeText(fallback.Summary))
	for _, grade := range fallback.GradeLevels {
		parts = append(parts, NormalizeText(grade))
	}
	return Fingerprint{
		Kind:   FingerprintMetadata,
		Digest: hexDigest(strings.Join(parts, "\n")),
	}
}

// ParseFingerprint rebuilds a Fingerprint from its stored kind and digest
// columns. Unknown kinds yield a zero fingerprint.
func ParseFingerprint(kind, digest string) Fingerprint {
	k := FingerprintKind(strings.TrimSpace(kind))
	d := strings.TrimSpace(digest)
	if d == "" || (k != FingerprintContent && k != FingerprintMetadata) {
		return Fingerprint{}
	}
	return Fingerprint{Kind: k, Digest: d}
}

func hexDigest(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lowercases, collapses runs of whitespace to single spaces,
// drops control characters, and trims.
func NormalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

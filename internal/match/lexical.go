package match

import (
	"strings"
	"unicode"
)

// TitleSimilarity scores two titles in [0,1]. Titles are normalized,
// punctuation is stripped to whitespace, tokens pass a stop-word filter, and
// duplicates within a title collapse to a set. The score blends token-set
// Jaccard with a length-ratio term so a one-word title cannot trivially match
// a long one just by sharing its short tokens.
func (c Config) TitleSimilarity(left, right string) float64 {
	leftSet := c.titleTokenSet(left)
	rightSet := c.titleTokenSet(right)

	if len(leftSet) == 0 && len(rightSet) == 0 {
		return 1.0
	}
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0.0
	}

	jaccard := setJaccard(leftSet, rightSet)

	minLen, maxLen := len(leftSet), len(rightSet)
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	lengthRatio := float64(minLen) / float64(maxLen)

	return c.LexicalJaccardWeight*jaccard + c.LexicalLengthWeight*lengthRatio
}

func (c Config) titleTokenSet(title string) map[string]struct{} {
	tokens := Tokenize(title)
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, stop := c.StopWords[token]; stop {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}

// Tokenize normalizes text and splits on any non-letter, non-digit rune.
func Tokenize(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

func setJaccard(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	intersection := 0
	for value := range left {
		if _, ok := right[value]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

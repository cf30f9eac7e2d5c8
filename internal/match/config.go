// Package match implements the pairwise scoring primitives of the duplicate
// detection engine: content fingerprints, title similarity, categorical
// attribute overlap, and the combiner that fuses them into one confidence
// score and classification. Everything here is pure; store access lives in
// the dedupe package.
package match

// Config carries every tunable scoring constant. Components receive it
// explicitly instead of reading package globals so tests can substitute
// thresholds deterministically. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// Lexical title similarity.
	StopWords            map[string]struct{}
	LexicalJaccardWeight float64
	LexicalLengthWeight  float64

	// Attribute overlap weights per metadata field. Fields absent from the
	// map contribute nothing even when present on both records.
	FieldWeights map[string]float64

	// Combined-score weights when a semantic signal is available.
	LexicalWeightWithEmbedding   float64
	AttributeWeightWithEmbedding float64
	SemanticWeight               float64

	// Combined-score weights in degraded (no embedding) mode.
	LexicalWeightNoEmbedding   float64
	AttributeWeightNoEmbedding float64

	// Classification thresholds and result shaping.
	HighThreshold   float64
	MediumThreshold float64
	ResultFloor     float64
	MaxResults      int

	// Semantic matcher floor and cap for per-submission detection.
	SemanticFloor          float64
	SemanticCandidateLimit int

	// Corpus-cleanup threshold used by the cluster builder. Stricter than
	// the per-submission floor: cleanup tolerates no ambiguity.
	ClusterCosineThreshold float64
}

// Metadata field names used as FieldWeights keys and in match details.
const (
	FieldGradeLevels      = "grade_levels"
	FieldThemes           = "themes"
	FieldActivityType     = "activity_type"
	FieldCulturalHeritage = "cultural_heritage"
	FieldSeason           = "season"
	FieldIngredients      = "ingredients"
	FieldCookingMethods   = "cooking_methods"
)

var defaultStopWords = []string{
	"a", "an", "and", "for", "from", "in", "into", "of", "on", "or",
	"the", "to", "with",
}

// DefaultConfig returns the production scoring configuration. The floor and
// cluster thresholds are empirically chosen, not derived from labeled data;
// validate against a labeled sample before changing them.
func DefaultConfig() Config {
	stop := make(map[string]struct{}, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}

	return Config{
		StopWords:            stop,
		LexicalJaccardWeight: 0.8,
		LexicalLengthWeight:  0.2,

		FieldWeights: map[string]float64{
			FieldGradeLevels:      1.0,
			FieldThemes:           1.0,
			FieldActivityType:     0.8,
			FieldCulturalHeritage: 0.6,
			FieldSeason:           0.6,
			FieldIngredients:      0.4,
			FieldCookingMethods:   0.4,
		},

		LexicalWeightWithEmbedding:   0.3,
		AttributeWeightWithEmbedding: 0.2,
		SemanticWeight:               0.5,

		LexicalWeightNoEmbedding:   0.7,
		AttributeWeightNoEmbedding: 0.3,

		HighThreshold:   0.85,
		MediumThreshold: 0.70,
		ResultFloor:     0.45,
		MaxResults:      10,

		SemanticFloor:          0.75,
		SemanticCandidateLimit: 20,

		ClusterCosineThreshold: 0.95,
	}
}

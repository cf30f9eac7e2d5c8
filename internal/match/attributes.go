package match

// Metadata holds the categorical dimensions of a lesson. A nil slice means
// the field is absent; a non-nil empty slice means the field is present with
// no values. The distinction matters to AttributeOverlap.
type Metadata struct {
	GradeLevels      []string `json:"grade_levels,omitempty"`
	Themes           []string `json:"themes,omitempty"`
	ActivityType     []string `json:"activity_type,omitempty"`
	CulturalHeritage []string `json:"cultural_heritage,omitempty"`
	Season           []string `json:"season,omitempty"`
	Ingredients      []string `json:"ingredients,omitempty"`
	CookingMethods   []string `json:"cooking_methods,omitempty"`
}

func (m Metadata) fields() []metadataField {
	return []metadataField{
		{name: FieldGradeLevels, values: m.GradeLevels},
		{name: FieldThemes, values: m.Themes},
		{name: FieldActivityType, values: m.ActivityType},
		{name: FieldCulturalHeritage, values: m.CulturalHeritage},
		{name: FieldSeason, values: m.Season},
		{name: FieldIngredients, values: m.Ingredients},
		{name: FieldCookingMethods, values: m.CookingMethods},
	}
}

type metadataField struct {
	name   string
	values []string
}

func (f metadataField) present() bool {
	return f.values != nil
}

// AttributeOverlap computes the weighted average of per-field Jaccard scores
// across the fields present on both records, re-normalized by the sum of
// weights actually used so partial metadata never drags the score toward
// zero. A field missing on either side is skipped entirely. Returns 0 when
// no field contributed.
func (c Config) AttributeOverlap(left, right Metadata) float64 {
	leftFields := left.fields()
	rightFields := right.fields()

	var weightedSum, weightTotal float64
	for i := range leftFields {
		lf, rf := leftFields[i], rightFields[i]
		if !lf.present() || !rf.present() {
			continue
		}
		weight, ok := c.FieldWeights[lf.name]
		if !ok || weight <= 0 {
			continue
		}
		weightedSum += weight * fieldJaccard(lf.values, rf.values)
		weightTotal += weight
	}

	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

// fieldJaccard scores two value sets after case normalization and trimming.
// Both-empty scores 1.0, one-empty scores 0.0.
func fieldJaccard(left, right []string) float64 {
	leftSet := valueSet(left)
	rightSet := valueSet(right)

	if len(leftSet) == 0 && len(rightSet) == 0 {
		return 1.0
	}
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0.0
	}
	return setJaccard(leftSet, rightSet)
}

func valueSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := NormalizeText(value)
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}

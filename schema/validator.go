package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"garden.school/lessonbank/internal/match"
)

//go:embed lesson_submission.schema.json
var lessonSubmissionSchemaJSON string

type LessonSubmission struct {
	PayloadVersion string         `json:"payload_version"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary,omitempty"`
	Content        string         `json:"content,omitempty"`
	SourceDocument *string        `json:"source_document,omitempty"`
	Language       *string        `json:"language,omitempty"`
	Metadata       match.Metadata `json:"metadata,omitempty"`
	Embedding      []float64      `json:"embedding,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateLessonSubmissionPayload(payload json.RawMessage) (*LessonSubmission, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var submission LessonSubmission
	if err := json.Unmarshal(normalized, &submission); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&submission); err != nil {
		return nil, err
	}

	return &submission, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("lesson_submission.schema.json", strings.NewReader(lessonSubmissionSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("lesson_submission.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(submission *LessonSubmission) error {
	if submission == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(submission.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(submission.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}

	if submission.Language != nil {
		code := strings.TrimSpace(*submission.Language)
		if len(code) != 2 || strings.ToLower(code) != code {
			return fmt.Errorf("language must be a lowercase two-letter code")
		}
	}

	for fieldName, values := range map[string][]string{
		"grade_levels":      submission.Metadata.GradeLevels,
		"themes":            submission.Metadata.Themes,
		"activity_type":     submission.Metadata.ActivityType,
		"cultural_heritage": submission.Metadata.CulturalHeritage,
		"season":            submission.Metadata.Season,
		"ingredients":       submission.Metadata.Ingredients,
		"cooking_methods":   submission.Metadata.CookingMethods,
	} {
		for i, value := range values {
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("metadata.%s[%d] must not be empty", fieldName, i)
			}
		}
	}

	return nil
}

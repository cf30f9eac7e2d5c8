package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateLessonSubmissionPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"title":"Garden Salsa",
		"summary":"Harvest tomatoes and make salsa.",
		"content":"Students harvest ripe tomatoes, then chop and combine.",
		"language":"en",
		"metadata":{
			"grade_levels":["3","4"],
			"themes":["harvest"],
			"ingredients":["tomato","onion","cilantro"]
		}
	}`)

	submission, err := ValidateLessonSubmissionPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if submission.Title != "Garden Salsa" {
		t.Fatalf("expected title=Garden Salsa, got %q", submission.Title)
	}
	if submission.PayloadVersion != "v1" {
		t.Fatalf("expected payload_version=v1, got %q", submission.PayloadVersion)
	}
	if len(submission.Metadata.GradeLevels) != 2 {
		t.Fatalf("expected two grade levels, got %v", submission.Metadata.GradeLevels)
	}
	if submission.Metadata.Season != nil {
		t.Fatalf("absent metadata field must stay nil, got %v", submission.Metadata.Season)
	}
}

func TestValidateLessonSubmissionPayload_MissingTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"content":"Some lesson content."
	}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for missing title")
	}
}

func TestValidateLessonSubmissionPayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"title":"   "
	}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateLessonSubmissionPayload_WrongVersion(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v2",
		"title":"Garden Salsa"
	}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unsupported payload_version")
	}
}

func TestValidateLessonSubmissionPayload_UnknownField(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"title":"Garden Salsa",
		"publisher":"unknown"
	}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown top-level field")
	}
}

func TestValidateLessonSubmissionPayload_BadLanguage(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"title":"Garden Salsa",
		"language":"EN"
	}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for uppercase language code")
	}
}

func TestValidateLessonSubmissionPayload_EmptyMetadataValue(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"title":"Garden Salsa",
		"metadata":{"themes":["harvest",""]}
	}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for empty metadata value")
	}
}

func TestValidateLessonSubmissionPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"A"}{"extra":true}`)

	_, err := ValidateLessonSubmissionPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for trailing JSON content")
	}
}

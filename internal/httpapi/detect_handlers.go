package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"garden.school/lessonbank/internal/dedupe"
	payloadschema "garden.school/lessonbank/schema"
)

type detectResponse struct {
	Fingerprint struct {
		Kind   string `json:"kind"`
		Digest string `json:"digest"`
	} `json:"fingerprint"`
	Duplicates  []dedupe.Duplicate `json:"duplicates"`
	Diagnostics dedupe.Diagnostics `json:"diagnostics"`
}

// handleDetect scores a payload against the catalog without storing it.
// Useful for previewing duplicates before committing a submission.
func (s *Server) handleDetect(c echo.Context) error {
	raw, err := readRequestBody(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	submission, err := payloadschema.ValidateLessonSubmissionPayload(raw)
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	result, err := s.engine.Detect(c.Request().Context(), dedupe.DetectRequest{
		Title:     submission.Title,
		Summary:   submission.Summary,
		Content:   submission.Content,
		Metadata:  submission.Metadata,
		Embedding: submission.Embedding,
	})
	if err != nil {
		if errors.Is(err, dedupe.ErrInvalidInput) {
			return failValidation(c, map[string]string{"payload": err.Error()})
		}
		s.logger.Error().Err(err).Msg("detection run failed")
		return internalError(c, "Failed to run detection")
	}

	return success(c, buildDetectResponse(result))
}

// handleSubmit stores the submission, then runs detection against it.
func (s *Server) handleSubmit(c echo.Context) error {
	raw, err := readRequestBody(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	record, err := s.intake.Accept(c.Request().Context(), raw)
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	result, err := s.engine.Detect(c.Request().Context(), dedupe.DetectRequest{
		SubmissionID: record.SubmissionID,
		Title:        record.Title,
		Summary:      record.Summary,
		Content:      record.Content,
		Metadata:     record.Metadata,
		Embedding:    record.Embedding,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("submission_id", record.SubmissionID).Msg("post-intake detection failed")
		return internalError(c, "Submission stored but detection failed")
	}

	return successWithStatus(c, http.StatusCreated, map[string]any{
		"submission": record,
		"detection":  buildDetectResponse(result),
	})
}

func (s *Server) handleDuplicateGroups(c echo.Context) error {
	groups, err := s.engine.BuildGroups(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("duplicate group sweep failed")
		return internalError(c, "Failed to build duplicate groups")
	}
	if groups == nil {
		groups = []dedupe.DuplicateGroup{}
	}
	return success(c, map[string]any{
		"items": groups,
		"count": len(groups),
	})
}

type resolveGroupRequest struct {
	Decisions []dedupe.MemberDecision `json:"decisions"`
}

func (s *Server) handleResolveGroup(c echo.Context) error {
	signature := strings.TrimSpace(c.Param("signature"))
	if signature == "" {
		return failValidation(c, map[string]string{"signature": "is required"})
	}

	var req resolveGroupRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	principal, _ := principalFromContext(c)
	result, err := s.engine.ResolveGroup(c.Request().Context(), dedupe.ResolveRequest{
		Signature: signature,
		Decisions: req.Decisions,
		DecidedBy: principal.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, dedupe.ErrInvalidDecision), errors.Is(err, dedupe.ErrInvalidInput):
			return failValidation(c, map[string]string{"decisions": err.Error()})
		case errors.Is(err, dedupe.ErrGroupAlreadyDecided):
			return fail(c, http.StatusConflict, "Group already decided", nil)
		case errors.Is(err, dedupe.ErrMemberNotActive):
			return fail(c, http.StatusConflict, err.Error(), nil)
		default:
			s.logger.Error().Err(err).Str("signature", signature).Msg("resolve group failed")
			return internalError(c, "Failed to resolve group")
		}
	}

	return success(c, result)
}

type dismissGroupRequest struct {
	Members []string `json:"members"`
}

func (s *Server) handleDismissGroup(c echo.Context) error {
	signature := strings.TrimSpace(c.Param("signature"))
	if signature == "" {
		return failValidation(c, map[string]string{"signature": "is required"})
	}

	var req dismissGroupRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	principal, _ := principalFromContext(c)
	err := s.engine.DismissGroup(c.Request().Context(), signature, req.Members, principal.Username)
	if err != nil {
		switch {
		case errors.Is(err, dedupe.ErrInvalidInput):
			return failValidation(c, map[string]string{"members": err.Error()})
		case errors.Is(err, dedupe.ErrGroupAlreadyDecided):
			return fail(c, http.StatusConflict, "Group already decided", nil)
		case errors.Is(err, dedupe.ErrMemberNotActive):
			return fail(c, http.StatusConflict, err.Error(), nil)
		default:
			s.logger.Error().Err(err).Str("signature", signature).Msg("dismiss group failed")
			return internalError(c, "Failed to dismiss group")
		}
	}

	return success(c, map[string]any{
		"signature": signature,
		"outcome":   "dismissed",
	})
}

func buildDetectResponse(result dedupe.DetectResult) detectResponse {
	resp := detectResponse{
		Duplicates:  result.Duplicates,
		Diagnostics: result.Diagnostics,
	}
	if resp.Duplicates == nil {
		resp.Duplicates = []dedupe.Duplicate{}
	}
	resp.Fingerprint.Kind = string(result.Fingerprint.Kind)
	resp.Fingerprint.Digest = result.Fingerprint.Digest
	return resp
}

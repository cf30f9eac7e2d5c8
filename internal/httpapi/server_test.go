package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"garden.school/lessonbank/internal/dedupe"
	"garden.school/lessonbank/internal/match"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(nil, nil, nil, zerolog.Nop(), Options{})
}

func newTestContext(method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestServerOptionDefaults(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	if s.opts.Host != "0.0.0.0" {
		t.Fatalf("host = %s, want 0.0.0.0", s.opts.Host)
	}
	if s.opts.Port != 8090 {
		t.Fatalf("port = %d, want 8090", s.opts.Port)
	}
	if s.opts.SessionCookie != "lessonbank_session" {
		t.Fatalf("cookie = %s, want lessonbank_session", s.opts.SessionCookie)
	}
	if s.opts.SessionTTL != 24*time.Hour {
		t.Fatalf("session ttl = %v, want 24h", s.opts.SessionTTL)
	}
}

func TestJSendSuccessEnvelope(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodGet, "/api/v1/health", "")
	if err := success(c, map[string]any{"ok": true}); err != nil {
		t.Fatalf("success returned error: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope["status"] != "success" {
		t.Fatalf("status = %v, want success", envelope["status"])
	}
}

func TestJSendFailValidationEnvelope(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodPost, "/api/v1/detect", "")
	if err := failValidation(c, map[string]string{"title": "is required"}); err != nil {
		t.Fatalf("failValidation returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want 400", rec.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope["status"] != "fail" {
		t.Fatalf("status = %v, want fail", envelope["status"])
	}
}

func TestDecodeJSONBodyRejectsTrailingContent(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(http.MethodPost, "/", `{"a":1}{"b":2}`)
	var target map[string]any
	if err := decodeJSONBody(c, &target); err == nil {
		t.Fatal("expected error for trailing JSON content")
	}
}

func TestRequireAuthWithoutCookie(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	c, rec := newTestContext(http.MethodGet, "/api/v1/auth/me", "")

	next := func(c echo.Context) error { return success(c, nil) }
	if err := s.requireAuth()(next)(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status code = %d, want 401", rec.Code)
	}
}

func TestPrincipalFromContext(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(http.MethodGet, "/", "")
	if _, ok := principalFromContext(c); ok {
		t.Fatal("expected no principal on fresh context")
	}

	c.Set("auth.principal", authPrincipal{Username: "reviewer"})
	principal, ok := principalFromContext(c)
	if !ok || principal.Username != "reviewer" {
		t.Fatalf("principal = %+v ok=%v, want reviewer", principal, ok)
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	c, rec := newTestContext(http.MethodPost, "/api/v1/auth/login", "")

	s.setSessionCookie(c, "abc123", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != s.opts.SessionCookie || cookie.Value != "abc123" {
		t.Fatalf("unexpected cookie %s=%s", cookie.Name, cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
}

func TestBuildDetectResponseNeverNil(t *testing.T) {
	t.Parallel()

	resp := buildDetectResponse(dedupe.DetectResult{
		Fingerprint: match.ComputeFingerprint("salsa lesson content", match.FallbackFields{}),
	})
	if resp.Duplicates == nil {
		t.Fatal("duplicates must serialize as an empty array, not null")
	}
	if resp.Fingerprint.Kind != "content" {
		t.Fatalf("fingerprint kind = %s, want content", resp.Fingerprint.Kind)
	}
}

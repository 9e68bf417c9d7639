package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestErrorConstructors(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		code   string
		status int
	}{
		{"authentication", Authentication(), CodeAuthenticationFailed, http.StatusUnauthorized},
		{"authorization", Authorization(""), CodeAuthorizationFailed, http.StatusForbidden},
		{"validation", Validation("bad input"), CodeValidation, http.StatusBadRequest},
		{"not found", NotFound("booking"), CodeResourceNotFound, http.StatusNotFound},
		{"conflict", Conflict("username taken"), CodeResourceAlreadyExists, http.StatusConflict},
		{"business rule", BusinessRule("cannot cancel"), CodeBusinessRule, http.StatusUnprocessableEntity},
		{"rate limited", RateLimited(60), CodeRateLimitExceeded, http.StatusTooManyRequests},
		{"external", External("object store", errors.New("timeout")), CodeExternalService, http.StatusBadGateway},
		{"internal", Internal(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("%s: expected code %s, got %s", tc.name, tc.code, tc.err.Code)
		}
		if tc.err.Status != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.name, tc.status, tc.err.Status)
		}
	}
}

func TestRateLimited_RetryAfterDetail(t *testing.T) {
	e := RateLimited(3600)
	if e.Details["retry_after"] != 3600 {
		t.Errorf("expected retry_after 3600, got %v", e.Details["retry_after"])
	}
}

func TestAs_Unwrapping(t *testing.T) {
	orig := NotFound("report")
	wrapped := fmt.Errorf("service: %w", orig)
	e, ok := As(wrapped)
	if !ok {
		t.Fatal("expected to extract *Error from wrapped error")
	}
	if e.Code != CodeResourceNotFound {
		t.Errorf("unexpected code %s", e.Code)
	}
}

func TestErrorHandler_DomainError(t *testing.T) {
	e := echo.New()
	handler := NewHTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/123", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")

	handler(NotFound("booking"), c)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope JSON: %v", err)
	}
	if env.Error.Code != CodeResourceNotFound {
		t.Errorf("expected code %s, got %s", CodeResourceNotFound, env.Error.Code)
	}
	if env.Error.RequestID != "req-1" {
		t.Errorf("expected request_id req-1, got %s", env.Error.RequestID)
	}
	if env.Error.Path != "/api/v1/bookings/123" {
		t.Errorf("unexpected path %s", env.Error.Path)
	}
	if env.Error.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestErrorHandler_UnexpectedErrorIsOpaque(t *testing.T) {
	e := echo.New()
	handler := NewHTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler(errors.New("pq: connection refused to 10.0.0.5"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope JSON: %v", err)
	}
	if env.Error.Code != CodeInternal {
		t.Errorf("expected internal code, got %s", env.Error.Code)
	}
	if env.Error.Message == "pq: connection refused to 10.0.0.5" {
		t.Error("internal error detail must not be echoed to the client")
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	e := echo.New()
	handler := NewHTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler(echo.NewHTTPError(http.StatusNotFound, "Not Found"), c)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope JSON: %v", err)
	}
	if env.Error.Code != CodeResourceNotFound {
		t.Errorf("expected %s, got %s", CodeResourceNotFound, env.Error.Code)
	}
}

func TestErrorHandler_CommittedResponseUntouched(t *testing.T) {
	e := echo.New()
	handler := NewHTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().WriteHeader(http.StatusOK)

	handler(Internal(errors.New("late failure")), c)

	if rec.Code != http.StatusOK {
		t.Errorf("committed response must not be rewritten, got %d", rec.Code)
	}
}

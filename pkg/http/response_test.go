package http

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestErrorJSONCarriesTraceID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(nethttp.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := ErrorJSON(c, nethttp.StatusConflict, "username_taken", "Username is already taken"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != nethttp.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != "username_taken" || body.TraceID != "req-42" {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if strings.Contains(rec.Body.String(), `"data"`) {
		t.Fatalf("failure envelope should not carry data: %s", rec.Body.String())
	}
}

func TestJSONOmitsErrorFields(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(nethttp.MethodGet, "/", nil), rec)

	if err := JSON(c, nethttp.StatusOK, map[string]bool{"available": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `"available":true`) || strings.Contains(out, `"error"`) || strings.Contains(out, `"trace_id"`) {
		t.Fatalf("unexpected body %s", out)
	}
}

func TestRequestIDPrefersResponseHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(nethttp.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "incoming")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "generated")

	if got := RequestID(c); got != "generated" {
		t.Fatalf("expected generated id, got %q", got)
	}
}

package httpwrap

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClearRawPath(t *testing.T) {
	var seenRawPath, seenPath string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRawPath = r.URL.RawPath
		seenPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/tasks/a%2Fb", nil)
	req.URL.RawPath = "/api/tasks/a%2Fb"

	rec := httptest.NewRecorder()
	ClearRawPath(inner).ServeHTTP(rec, req)

	if seenRawPath != "" {
		t.Errorf("expected empty RawPath in inner handler, got %q", seenRawPath)
	}
	if seenPath != "/api/tasks/a/b" {
		t.Errorf("Path changed: %q", seenPath)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestLimitBody(t *testing.T) {
	var readErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})
	h := LimitBody(8)(inner)

	req := httptest.NewRequest("POST", "/api/invite", strings.NewReader("short"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr != nil {
		t.Errorf("small body should read cleanly, got %v", readErr)
	}

	req = httptest.NewRequest("POST", "/api/invite", strings.NewReader("this body is far too long"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr == nil {
		t.Error("expected error reading an oversized body")
	}
}

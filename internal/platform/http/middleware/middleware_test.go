package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/realip"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func newRouter(log *slog.Logger, h http.HandlerFunc) http.Handler {
	proxies := realip.NewTrustedProxies([]string{"127.0.0.0/8"})
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(log, proxies))
	r.Use(AccessLog(log, proxies))
	r.Get("/*", h)
	return r
}

func TestAccessLog_CarriesRequestFields(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	router := newRouter(log, func(w http.ResponseWriter, r *http.Request) {
		appctx.GetLogger(r.Context()).Debug("inside handler")
		_, _ = w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/tarefas?secret=1", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	router.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	handlerLine, access := lines[0], lines[1]
	if handlerLine["request_id"] == "" || handlerLine["request_id"] != access["request_id"] {
		t.Errorf("request_id not shared: %v vs %v", handlerLine["request_id"], access["request_id"])
	}
	if access["msg"] != "request" || access["path"] != "/tarefas" {
		t.Errorf("unexpected access line: %v", access)
	}
	if access["client_ip"] != "203.0.113.9" {
		t.Errorf("client_ip = %v", access["client_ip"])
	}
	if access["status"] != float64(200) || access["bytes"] != float64(5) {
		t.Errorf("status/bytes = %v/%v", access["status"], access["bytes"])
	}
	if _, ok := access["duration_ms"]; !ok {
		t.Error("missing duration_ms")
	}
}

func TestAccessLog_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotModified, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))
			router := newRouter(log, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			lines := decodeLines(t, &buf)
			if len(lines) != 1 {
				t.Fatalf("expected 1 line, got %d", len(lines))
			}
			if lines[0]["level"] != tt.level {
				t.Errorf("level = %v, want %s", lines[0]["level"], tt.level)
			}
		})
	}
}

func TestAccessLog_FallbackWithoutRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := AccessLog(log, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/me", nil))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["path"] != "/api/me" || lines[0]["client_ip"] != "unknown" {
		t.Errorf("fallback fields missing: %v", lines[0])
	}
}

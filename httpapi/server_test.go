package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zero1hq/rag-assistant/rag"
)

// mockAssistant implements Assistant.
type mockAssistant struct {
	answer   rag.Answer
	report   rag.IndexReport
	askErr   error
	indexErr error

	lastQuestion string
	lastFolder   string
	lastQuery    string
	lastTopK     int
	pingErr      error
}

func (m *mockAssistant) Ask(_ context.Context, question string) (rag.Answer, error) {
	m.lastQuestion = question
	if m.askErr != nil {
		return rag.Answer{}, m.askErr
	}
	return m.answer, nil
}

func (m *mockAssistant) IndexDrive(_ context.Context, folderID string) (rag.IndexReport, error) {
	m.lastFolder = folderID
	return m.report, m.indexErr
}

func (m *mockAssistant) IndexWeb(_ context.Context, query string, topK int) (rag.IndexReport, error) {
	m.lastQuery = query
	m.lastTopK = topK
	return m.report, m.indexErr
}

func (m *mockAssistant) Ping(_ context.Context) error {
	return m.pingErr
}

func newTestServer(assistant *mockAssistant, opts ...ServerOption) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]ServerOption{WithServerLogger(logger)}, opts...)
	return NewServer(assistant, prometheus.NewRegistry(), opts...)
}

func postJSON(t *testing.T, server *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestHandleAsk(t *testing.T) {
	assistant := &mockAssistant{answer: rag.Answer{Text: "the answer", Sources: []string{"Plan"}}}
	server := newTestServer(assistant)

	rec := postJSON(t, server, "/v1/ask", `{"question": "what is the plan?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if assistant.lastQuestion != "what is the plan?" {
		t.Errorf("question not forwarded: %q", assistant.lastQuestion)
	}

	var answer rag.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if answer.Text != "the answer" || len(answer.Sources) != 1 {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleAskEmptyQuestion(t *testing.T) {
	assistant := &mockAssistant{askErr: rag.ErrEmptyQuestion}
	server := newTestServer(assistant)

	rec := postJSON(t, server, "/v1/ask", `{"question": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid error JSON: %v", err)
	}
	if env.Error.Code != "invalid_request" {
		t.Errorf("unexpected error code: %q", env.Error.Code)
	}
}

func TestHandleAskUpstreamError(t *testing.T) {
	assistant := &mockAssistant{askErr: errors.New("provider down")}
	server := newTestServer(assistant)

	rec := postJSON(t, server, "/v1/ask", `{"question": "q"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "provider down") {
		t.Error("internal error detail must not leak to clients")
	}
}

func TestHandleAskInvalidBody(t *testing.T) {
	server := newTestServer(&mockAssistant{})

	rec := postJSON(t, server, "/v1/ask", `{"question": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for truncated JSON, got %d", rec.Code)
	}

	rec = postJSON(t, server, "/v1/ask", `{"question": "q", "extra": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown fields, got %d", rec.Code)
	}
}

func TestHandleIndexDrive(t *testing.T) {
	assistant := &mockAssistant{report: rag.IndexReport{Indexed: 4, Chunks: 12}}
	server := newTestServer(assistant)

	rec := postJSON(t, server, "/v1/index/drive", `{"folder_id": "abc123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if assistant.lastFolder != "abc123" {
		t.Errorf("folder ID not forwarded: %q", assistant.lastFolder)
	}

	var report rag.IndexReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if report.Indexed != 4 || report.Chunks != 12 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestHandleIndexDriveMissingFolder(t *testing.T) {
	server := newTestServer(&mockAssistant{})
	rec := postJSON(t, server, "/v1/index/drive", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleIndexDriveDefaultFolder(t *testing.T) {
	assistant := &mockAssistant{report: rag.IndexReport{Indexed: 1}}
	server := newTestServer(assistant, WithDefaultDriveFolder("shared-folder"))

	rec := postJSON(t, server, "/v1/index/drive", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if assistant.lastFolder != "shared-folder" {
		t.Errorf("expected configured default folder, got %q", assistant.lastFolder)
	}

	// An explicit folder still wins over the default.
	rec = postJSON(t, server, "/v1/index/drive", `{"folder_id": "explicit"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if assistant.lastFolder != "explicit" {
		t.Errorf("expected explicit folder to override default, got %q", assistant.lastFolder)
	}
}

func TestHandleIndexWeb(t *testing.T) {
	assistant := &mockAssistant{report: rag.IndexReport{Indexed: 2, Failed: 1}}
	server := newTestServer(assistant)

	rec := postJSON(t, server, "/v1/index/web", `{"query": "fintech news", "top_k": 7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if assistant.lastQuery != "fintech news" {
		t.Errorf("query not forwarded: %q", assistant.lastQuery)
	}
	if assistant.lastTopK != 7 {
		t.Errorf("top_k not forwarded: %d", assistant.lastTopK)
	}
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(&mockAssistant{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealthStoreDown(t *testing.T) {
	server := newTestServer(&mockAssistant{pingErr: errors.New("connection refused")})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	rag.NewMetrics(registry)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(&mockAssistant{}, registry, WithServerLogger(logger))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(&mockAssistant{})
	req := httptest.NewRequest(http.MethodGet, "/v1/ask", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRateLimiting(t *testing.T) {
	server := newTestServer(&mockAssistant{answer: rag.Answer{Text: "ok"}},
		WithRateLimit(1, 2))

	var limited bool
	for i := 0; i < 5; i++ {
		rec := postJSON(t, server, "/v1/ask", `{"question": "q"}`)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expected some requests to be rate limited")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	l := newIPRateLimiter(1, 1)

	if !l.allow("10.0.0.1") {
		t.Error("first request from a client must pass")
	}
	if l.allow("10.0.0.1") {
		t.Error("second immediate request must be limited")
	}
	if !l.allow("10.0.0.2") {
		t.Error("a different client must not be affected")
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clientdesk/internal/config"
	"clientdesk/internal/lookup"
)

type staticSheetSource struct {
	headers []string
	column  []string
	rows    map[int][]string
}

func (s *staticSheetSource) HeaderRow(ctx context.Context) ([]string, error) {
	return s.headers, nil
}

func (s *staticSheetSource) Column(ctx context.Context, index int) ([]string, error) {
	return s.column, nil
}

func (s *staticSheetSource) Row(ctx context.Context, rowNumber int) ([]string, error) {
	return s.rows[rowNumber], nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	source := &staticSheetSource{
		headers: []string{"Name", "Client Number"},
		column:  []string{"79161234567"},
		rows:    map[int][]string{2: {"Anna", "79161234567"}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver, err := lookup.NewRowResolver(source, 8)
	if err != nil {
		t.Fatal(err)
	}
	engine := lookup.NewEngine(source, resolver, &lookup.MemorySnapshotStore{}, lookup.Options{
		Keywords: []string{"client"},
		Logger:   logger,
	})
	if err := engine.Warm(context.Background()); err != nil {
		t.Fatalf("warm engine: %v", err)
	}
	return NewRouter(Dependencies{
		Config: config.Config{Environment: "test"},
		Engine: engine,
		Logger: logger,
	})
}

func TestHealthAndReady(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestInfo(t *testing.T) {
	handler := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	var payload struct {
		KeyHeader string `json:"key_header"`
		IndexSize int    `json:"index_size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if payload.KeyHeader != "Client Number" || payload.IndexSize != 1 {
		t.Fatalf("info payload = %+v", payload)
	}
}

func TestLookupEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/v1/lookup",
		strings.NewReader(`{"text":"client 79161234567 please"}`))
	handler.ServeHTTP(rec, request)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Outcome string `json:"outcome"`
		Row     int    `json:"row"`
		Fields  []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode lookup: %v", err)
	}
	if payload.Outcome != "found" || payload.Row != 2 || len(payload.Fields) != 2 {
		t.Fatalf("lookup payload = %+v", payload)
	}
}

func TestLookupEndpointRejectsBadRequests(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lookup", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET lookup status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/lookup", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty lookup status = %d", rec.Code)
	}
}

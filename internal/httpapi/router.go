package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"clientdesk/internal/config"
	"clientdesk/internal/lookup"
	"clientdesk/internal/store"
)

type Dependencies struct {
	Config config.Config
	Store  *store.Store
	Engine *lookup.Engine
	Logger *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/lookup", rt.handleLookup)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store != nil {
		if err := r.deps.Store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
			return
		}
	}
	if !r.deps.Engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "index not built"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	stats := r.deps.Engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "clientdesk",
		"environment": r.deps.Config.Environment,
		"key_header":  stats.KeyHeader,
		"headers":     stats.Headers,
		"index_size":  stats.IndexSize,
		"built_at":    stats.BuiltAt,
		"cached_rows": stats.CachedRows,
		"degraded":    stats.Degraded,
	})
}

type lookupRequest struct {
	Text string `json:"text"`
}

func (r *router) handleLookup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload lookupRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if payload.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	lookupCtx, cancel := context.WithTimeout(req.Context(), 15*time.Second)
	defer cancel()
	result := r.deps.Engine.Lookup(lookupCtx, lookup.Query{
		Conversation: "httpapi",
		Sender:       req.RemoteAddr,
		Text:         payload.Text,
	})

	response := map[string]any{
		"outcome": result.Outcome.String(),
		"key":     result.Key,
	}
	status := http.StatusOK
	switch result.Outcome {
	case lookup.OutcomeFound:
		fields := make([]map[string]string, 0, len(result.Record.Fields))
		for _, field := range result.Record.Fields {
			fields = append(fields, map[string]string{"name": field.Name, "value": field.Value})
		}
		response["row"] = result.Record.RowNumber
		response["fields"] = fields
		response["suffix_matched"] = result.SuffixMatched
	case lookup.OutcomeError:
		r.deps.Logger.Error("lookup failed", "error", result.Err, "key", result.Key)
		status = http.StatusBadGateway
		response["error"] = "upstream lookup failed"
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/vinsync/engine/connector"
	"github.com/WessleyAI/vinsync/engine/record"
	"github.com/WessleyAI/vinsync/pkg/metrics"
	"github.com/WessleyAI/vinsync/pkg/mid"
)

// SyncRequest is the JSON body for POST /api/sync/{table}.
type SyncRequest struct {
	State connector.State `json:"state"`
}

// SyncResponse is the JSON response for POST /api/sync/{table}.
type SyncResponse struct {
	Records []record.Record `json:"records"`
	State   connector.State `json:"state"`
}

func newServer(conn *connector.Connector, met *metrics.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/schema", handleSchema(conn))
	mux.HandleFunc("GET /api/test", handleTest(conn))
	mux.HandleFunc("POST /api/sync/{table}", handleSync(conn, logger))
	mux.Handle("GET /metrics", met.Handler())

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.Metrics(met),
		mid.OTel(connectorName),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSchema(conn *connector.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, conn.Schema())
	}
}

func handleTest(conn *connector.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": conn.TestConnection(r.Context())})
	}
}

func handleSync(conn *connector.Connector, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		table := r.PathValue("table")
		rows, state, err := conn.FetchRecords(r.Context(), table, req.State)
		if err != nil {
			logger.Error("sync request aborted", "table", table, "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		if rows == nil {
			rows = []record.Record{}
		}
		writeJSON(w, http.StatusOK, SyncResponse{Records: rows, State: state})
	}
}

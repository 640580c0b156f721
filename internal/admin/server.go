package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/GrumioGrumio/sol-creator-tracker/internal/domain/model"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/scan"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// ScanController is the interface the API uses to drive scans. In
// production this is satisfied by *scan.Coordinator.
type ScanController interface {
	Trigger(forceFull bool) (string, error)
	Status() model.ScanStatus
}

// Server provides the HTTP API for reading totals and triggering refreshes.
type Server struct {
	ctrl   ScanController
	wallet string
	logger *slog.Logger

	now func() time.Time
}

func NewServer(ctrl ScanController, wallet string, logger *slog.Logger) *Server {
	return &Server{
		ctrl:   ctrl,
		wallet: wallet,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

// Handler returns the HTTP handler for the tracker API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

type statusResponse struct {
	Wallet           string     `json:"wallet"`
	Running          bool       `json:"running"`
	RunID            string     `json:"run_id,omitempty"`
	TotalSOL         string     `json:"total_sol"`
	TotalLamports    string     `json:"total_lamports"`
	TransactionCount int64      `json:"transaction_count"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
	LastRunMs        int64      `json:"last_run_ms"`
	APICallsUsed     int        `json:"api_calls_used"`
	Truncated        bool       `json:"truncated,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.ctrl.Status()

	writeJSON(w, http.StatusOK, statusResponse{
		Wallet:           s.wallet,
		Running:          status.Running,
		RunID:            status.RunID,
		TotalSOL:         status.TotalSOL,
		TotalLamports:    status.TotalLamports,
		TransactionCount: status.TransactionCount,
		LastUpdated:      status.LastUpdated,
		LastRunMs:        status.LastRunMs,
		APICallsUsed:     status.APICallsUsed,
		Truncated:        status.Truncated,
		LastError:        status.LastError,
		Timestamp:        s.now().UTC(),
	})
}

type refreshRequest struct {
	ForceFull bool `json:"force_full"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	if r.URL.Query().Get("full") == "true" {
		req.ForceFull = true
	}

	runID, err := s.ctrl.Trigger(req.ForceFull)
	if err != nil {
		if errors.Is(err, scan.ErrScanInProgress) {
			http.Error(w, `{"error":"scan already in progress"}`, http.StatusConflict)
			return
		}
		s.logger.Error("refresh trigger failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	s.logger.Info("refresh accepted", "run_id", runID, "force_full", req.ForceFull)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": runID,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

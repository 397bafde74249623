// Package api exposes the export workflows over a small HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"customer-export/internal/config"
	"customer-export/internal/diagnostics"
	"customer-export/internal/export"
	"customer-export/internal/metrics"
	"customer-export/internal/misa"
	"customer-export/internal/odoo"
	"customer-export/internal/workbook"

	"github.com/rs/zerolog"
)

// HTTPServer serves health, export and customer-row endpoints.
type HTTPServer struct {
	cfg       config.HTTPConfig
	service   *export.Service
	snapshots *diagnostics.Store
	server    *http.Server
	logger    zerolog.Logger
}

func NewHTTPServer(cfg config.HTTPConfig, service *export.Service, snapshots *diagnostics.Store, logger zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, service: service, snapshots: snapshots, logger: logger}

	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/api/v1/export/file", srv.handleExportFile)
	mux.HandleFunc("/api/v1/customers/misa", srv.handleMisaCustomers)
	mux.HandleFunc("/api/v1/customers/odoo", srv.handleOdooCustomers)
	mux.HandleFunc("/api/v1/diagnostics/", srv.handleDiagnostics)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("health")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExportFile runs the whole workflow and streams the artifact back as
// an attachment.
func (s *HTTPServer) handleExportFile(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_file")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.service.Run(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	artifact := result.Artifact
	encodedName := url.PathEscape(artifact.Name)
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, artifact.Name, encodedName))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(artifact.Body)
}

func (s *HTTPServer) handleMisaCustomers(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customers_misa")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.service.Run(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleOdooCustomers(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customers_odoo")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.service.FetchOdooCustomers(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDiagnostics returns the persisted snapshot for a failed run id.
func (s *HTTPServer) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("diagnostics")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/diagnostics/"
	runID := strings.TrimPrefix(r.URL.Path, prefix)
	if runID == "" || strings.Contains(runID, "/") {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	snap, err := s.snapshots.Get(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot for this run id")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeFailure maps workflow errors to transport status codes: upstream
// failures surface as 502, local misconfiguration as 500.
func (s *HTTPServer) writeFailure(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request failed")

	var queueErr *misa.QueueError
	var notReady *misa.NotReadyError
	var dlErr *misa.DownloadError
	var remoteErr *odoo.RemoteError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &queueErr),
		errors.As(err, &notReady),
		errors.As(err, &dlErr),
		errors.As(err, &remoteErr),
		errors.Is(err, workbook.ErrEmptyWorkbook),
		errors.Is(err, workbook.ErrNoHeaderRow):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{
		"message": "failed to generate export",
		"detail":  err.Error(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

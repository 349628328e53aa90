// Package api serves the forecaster over HTTP: training and prediction
// endpoints, the audit log, health, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"revenue-forecaster/internal/audit"
	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/pipeline"
	"revenue-forecaster/internal/records"
	"revenue-forecaster/internal/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Options configure a Server.
type Options struct {
	Port         int
	Location     string // artifact location used by /train and /predict
	AuditLogPath string
	Gatherer     prometheus.Gatherer // defaults to the global registry
}

// Server exposes a pipeline.Service over HTTP.
type Server struct {
	svc       *pipeline.Service
	source    records.Source
	location  string
	auditPath string
	router    *mux.Router
	server    *http.Server
	isRunning bool
	mu        sync.Mutex
}

type trainResponse struct {
	Status   string              `json:"status"`
	Location string              `json:"model_path"`
	Best     string              `json:"best"`
	MAE      map[string]*float64 `json:"mae"`
	RunID    string              `json:"run_id"`
	Rows     int                 `json:"rows"`
	Degraded []string            `json:"degraded,omitempty"`
}

type predictResponse struct {
	Status     string  `json:"status"`
	Prediction float64 `json:"prediction_next_month"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewServer(svc *pipeline.Service, source records.Source, opts Options) *Server {
	s := &Server{
		svc:       svc,
		source:    source,
		location:  opts.Location,
		auditPath: opts.AuditLogPath,
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/train", s.handleTrain).Methods("GET", "POST")
	r.HandleFunc("/predict", s.handlePredict).Methods("GET")
	r.HandleFunc("/logfile", s.handleLogfile).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("api server is already running")
	}

	go func() {
		log.Info().
			Str("address", s.server.Addr).
			Msg("Starting forecaster API server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Forecaster API server failed")
		}
	}()

	s.isRunning = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown forecaster API server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Forecaster API server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Revenue Forecasting API"})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Run(r.Context(), s.source, s.location)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := trainResponse{
		Status:   "success",
		Location: result.Location,
		Best:     result.Selected,
		MAE:      make(map[string]*float64, len(result.MAE)),
		RunID:    result.RunID,
		Rows:     result.Rows,
	}
	for id, v := range result.MAE {
		if math.IsInf(v, 0) {
			resp.MAE[id] = nil
			continue
		}
		v := v
		resp.MAE[id] = &v
	}
	for _, d := range result.Warnings {
		resp.Degraded = append(resp.Degraded, d.Candidate)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	value, err := s.svc.Forecast(r.Context(), s.source, s.location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Status: "success", Prediction: value})
}

func (s *Server) handleLogfile(w http.ResponseWriter, r *http.Request) {
	text, err := audit.ReadAll(s.auditPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"log": text})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Status: "error", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

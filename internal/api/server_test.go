package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"revenue-forecaster/internal/audit"
	"revenue-forecaster/internal/cfg"
	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/metrics"
	"revenue-forecaster/internal/pipeline"
	"revenue-forecaster/internal/records"
	"revenue-forecaster/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearRecords(n int) records.Static {
	recs := make(records.Static, n)
	start := time.Date(2019, time.January, 15, 0, 0, 0, 0, time.UTC)
	for i := range recs {
		recs[i] = records.RawRecord{Date: start.AddDate(0, i, 0), Price: 1000 + 100*float64(i)}
	}
	return recs
}

func newTestServer(t *testing.T, src records.Source, boosted bool) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "api.log")

	sink, err := audit.NewFileSink(auditPath)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	registry := prometheus.NewRegistry()
	settings := cfg.Settings{Model: cfg.DefaultModelSettings()}
	settings.Model.EnsembleTrees = 10
	settings.Model.BoostedRounds = 20
	settings.Model.BoostedEnabled = boosted

	svc, err := pipeline.NewService(settings, pipeline.Deps{
		Store:   storage.NewFileArtifactStore(),
		Sink:    sink,
		Metrics: metrics.NewWrapper(metrics.NewWithRegistry(registry)),
	})
	require.NoError(t, err)

	s := NewServer(svc, src, Options{
		Location:     filepath.Join(dir, "final_model.json"),
		AuditLogPath: auditPath,
		Gatherer:     registry,
	})
	return s, auditPath
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestIndexAndHealth(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), true)

	rec := do(t, s, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Revenue Forecasting API")

	rec = do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestTrainThenPredict(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), false)

	rec := do(t, s, http.MethodPost, "/train")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var train trainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &train))
	assert.Equal(t, "success", train.Status)
	assert.Equal(t, common.CandidateEnsemble, train.Best)
	assert.Nil(t, train.MAE[common.CandidateBoosted])
	require.NotNil(t, train.MAE[common.CandidateBaseline])
	assert.InDelta(t, 100.0, *train.MAE[common.CandidateBaseline], 1e-9)
	assert.Equal(t, []string{common.CandidateBoosted}, train.Degraded)

	rec = do(t, s, http.MethodGet, "/predict")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pred predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.InDelta(t, 3400.0, pred.Prediction, 1e-6)
}

func TestPredictWithoutArtifact(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), true)

	rec := do(t, s, http.MethodGet, "/predict")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
}

func TestTrainWithInsufficientHistory(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(4), true)

	rec := do(t, s, http.MethodGet, "/train")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLogfile(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), true)

	rec := do(t, s, http.MethodGet, "/logfile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"log": ""}`, rec.Body.String())

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/train").Code)

	rec = do(t, s, http.MethodGet, "/logfile")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["log"], audit.TrainStarted)
	assert.Contains(t, body["log"], audit.TrainCompleted)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), true)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/train").Code)

	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "forecaster_training_runs_total 1")
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), true)

	rec := do(t, s, http.MethodDelete, "/predict")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", common.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrCorruptArtifact, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.err.Error(), " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t, linearRecords(24), true)
	s.server.Addr = "127.0.0.1:0"

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

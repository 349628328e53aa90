// Package pipeline wires feature building, training, artifact persistence and
// prediction into the operations exposed to callers. It owns the per-location
// training lock, the training timeout, and the audit trail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"revenue-forecaster/internal/audit"
	"revenue-forecaster/internal/cfg"
	"revenue-forecaster/internal/features"
	"revenue-forecaster/internal/ml"
	"revenue-forecaster/internal/records"
	"revenue-forecaster/internal/storage"

	"github.com/rs/zerolog/log"
)

// Metrics is the union of the metric hooks the pipeline components use.
type Metrics interface {
	ml.MetricsInterface
	features.MetricsTracker
	ArtifactAgeSet(trainedAt time.Time)
}

// Deps are the collaborators of a Service. Store is required; everything else
// has a default.
type Deps struct {
	Store      storage.ArtifactStore
	Sink       audit.Sink
	Metrics    Metrics
	Candidates []ml.Candidate
	Clock      func() time.Time
	NewRunID   func() string
}

// TrainResult summarizes a persisted training run.
type TrainResult struct {
	Location  string
	RunID     string
	Selected  string
	MAE       map[string]float64
	TrainedAt time.Time
	Rows      int
	Warnings  []ml.DegradedCandidateWarning
}

// Service runs the forecasting pipeline against one ArtifactStore.
type Service struct {
	builder      *features.Builder
	trainer      *ml.Trainer
	predictor    *ml.Predictor
	store        storage.ArtifactStore
	sink         audit.Sink
	metrics      Metrics
	trainTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(settings cfg.Settings, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline requires an artifact store")
	}

	var (
		featureMetrics features.MetricsTracker
		modelMetrics   ml.MetricsInterface
	)
	if deps.Metrics != nil {
		featureMetrics = deps.Metrics
		modelMetrics = deps.Metrics
	}

	candidates := deps.Candidates
	if candidates == nil {
		candidates = ml.DefaultCandidates(settings.Model)
	}

	sink := deps.Sink
	if sink == nil {
		sink = audit.LogSink{}
	}

	builder := features.NewBuilder(featureMetrics)
	return &Service{
		builder: builder,
		trainer: ml.NewTrainer(candidates, ml.TrainerOptions{
			SplitRatio: settings.Model.SplitRatio,
			Metrics:    modelMetrics,
			Clock:      deps.Clock,
			NewRunID:   deps.NewRunID,
		}),
		predictor:    ml.NewPredictor(builder, modelMetrics),
		store:        deps.Store,
		sink:         sink,
		metrics:      deps.Metrics,
		trainTimeout: settings.TrainTimeout,
		locks:        make(map[string]*sync.Mutex),
	}, nil
}

// BuildFeatures turns raw records into the supervised feature table.
func (s *Service) BuildFeatures(recs []records.RawRecord) (features.Table, error) {
	return s.builder.Build(recs)
}

// TrainSelectAndSave trains every candidate on table, keeps the best one, and
// persists the artifact at location. Runs for the same location are
// serialized. A cancelled or timed-out context aborts before the artifact is
// written, leaving the previous artifact in place.
func (s *Service) TrainSelectAndSave(ctx context.Context, table features.Table, location string) (*TrainResult, error) {
	lock := s.lockFor(location)
	lock.Lock()
	defer lock.Unlock()

	if s.trainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.trainTimeout)
		defer cancel()
	}

	s.emit(audit.TrainStarted, map[string]any{"location": location, "rows": table.Len()})

	report, err := s.trainer.Train(ctx, table)
	if err != nil {
		return nil, s.trainFailed(location, err)
	}

	artifact := report.Artifact
	for _, w := range report.Warnings {
		s.emit(audit.CandidateDegraded, map[string]any{
			"run_id":    artifact.RunID,
			"candidate": w.Candidate,
			"error":     w.Err.Error(),
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, s.trainFailed(location, err)
	}
	if err := s.store.Save(ctx, artifact, location); err != nil {
		return nil, s.trainFailed(location, fmt.Errorf("save artifact: %w", err))
	}

	s.emit(audit.TrainCompleted, map[string]any{
		"run_id":      artifact.RunID,
		"location":    location,
		"selected":    artifact.Selected,
		"mae":         maeFields(artifact.MAE),
		"rows":        artifact.TrainRows,
		"duration_ms": report.Duration.Milliseconds(),
	})

	log.Info().
		Str("run_id", artifact.RunID).
		Str("location", location).
		Str("selected", artifact.Selected).
		Dur("duration", report.Duration).
		Msg("Training run completed")

	return &TrainResult{
		Location:  location,
		RunID:     artifact.RunID,
		Selected:  artifact.Selected,
		MAE:       artifact.MAE,
		TrainedAt: artifact.TrainedAt,
		Rows:      artifact.TrainRows,
		Warnings:  report.Warnings,
	}, nil
}

// LoadArtifact reads the artifact at location. It fails with
// storage.ErrNotFound or storage.ErrCorruptArtifact.
func (s *Service) LoadArtifact(ctx context.Context, location string) (*ml.Artifact, error) {
	artifact, err := s.store.Load(ctx, location)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ArtifactAgeSet(artifact.TrainedAt)
	}
	return artifact, nil
}

// PredictNext forecasts the period after the latest one in recs.
func (s *Service) PredictNext(artifact *ml.Artifact, recs []records.RawRecord) (float64, error) {
	value, err := s.predictor.PredictNext(artifact, recs)
	if err != nil {
		s.emit(audit.PredictFailed, map[string]any{"error": err.Error()})
		return 0, err
	}

	fields := map[string]any{"forecast": value, "selected": artifact.Selected}
	if artifact.RunID != "" {
		fields["run_id"] = artifact.RunID
	}
	s.emit(audit.PredictCompleted, fields)
	return value, nil
}

// Run loads records from src, builds features, and trains and saves a new
// artifact at location.
func (s *Service) Run(ctx context.Context, src records.Source, location string) (*TrainResult, error) {
	recs, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	table, err := s.BuildFeatures(recs)
	if err != nil {
		return nil, err
	}
	return s.TrainSelectAndSave(ctx, table, location)
}

// Forecast loads records from src and the artifact at location and predicts
// the next period.
func (s *Service) Forecast(ctx context.Context, src records.Source, location string) (float64, error) {
	recs, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	artifact, err := s.LoadArtifact(ctx, location)
	if err != nil {
		return 0, err
	}
	return s.PredictNext(artifact, recs)
}

func (s *Service) lockFor(location string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[location]
	if !ok {
		l = &sync.Mutex{}
		s.locks[location] = l
	}
	return l
}

func (s *Service) trainFailed(location string, err error) error {
	s.emit(audit.TrainFailed, map[string]any{"location": location, "error": err.Error()})
	log.Error().Err(err).Str("location", location).Msg("Training run failed")
	return err
}

// emit never fails the calling operation; a broken sink is only logged.
func (s *Service) emit(name string, fields map[string]any) {
	if err := s.sink.Emit(audit.Event{Time: time.Now(), Name: name, Fields: fields}); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("Failed to write audit event")
	}
}

// maeFields renders infinite MAE values as null so the event stays valid JSON.
func maeFields(mae map[string]float64) map[string]any {
	out := make(map[string]any, len(mae))
	for id, v := range mae {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			out[id] = nil
		} else {
			out[id] = v
		}
	}
	return out
}

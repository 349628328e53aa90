package ml

import (
	"context"
	"math"
	"testing"
	"time"

	"revenue-forecaster/internal/cfg"
	"revenue-forecaster/internal/features"
	"revenue-forecaster/internal/records"

	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, time.March, 5, 12, 30, 0, 0, time.UTC)

// monthlyRecords emits one record per month starting January 2017.
func monthlyRecords(revenues ...float64) []records.RawRecord {
	recs := make([]records.RawRecord, 0, len(revenues))
	start := time.Date(2017, time.January, 10, 0, 0, 0, 0, time.UTC)
	for i, rev := range revenues {
		recs = append(recs, records.RawRecord{Date: start.AddDate(0, i, 0), Price: rev})
	}
	return recs
}

func constantRevenue(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func linearRevenue(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// seasonalRevenue mixes trend, yearly seasonality and a fixed jitter pattern.
func seasonalRevenue(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		season := 300 * math.Sin(2*math.Pi*float64(i%12)/12)
		out[i] = math.Round(5000 + 40*float64(i) + season + float64((i*37)%11)*25)
	}
	return out
}

func testModelSettings() cfg.ModelSettings {
	s := cfg.DefaultModelSettings()
	s.EnsembleTrees = 25
	s.BoostedRounds = 60
	return s
}

func newTestTrainer(settings cfg.ModelSettings, metrics MetricsInterface) *Trainer {
	return NewTrainer(DefaultCandidates(settings), TrainerOptions{
		SplitRatio: settings.SplitRatio,
		Metrics:    metrics,
		Clock:      func() time.Time { return fixedTime },
		NewRunID:   func() string { return "run-1" },
	})
}

func buildTable(t *testing.T, revenues []float64) features.Table {
	t.Helper()
	table, err := features.NewBuilder(nil).Build(monthlyRecords(revenues...))
	require.NoError(t, err)
	return table
}

func trainOn(t *testing.T, revenues []float64, settings cfg.ModelSettings) *Artifact {
	t.Helper()
	report, err := newTestTrainer(settings, nil).Train(context.Background(), buildTable(t, revenues))
	require.NoError(t, err)
	return report.Artifact
}

package features

import (
	"fmt"
	"math"
	"time"

	"revenue-forecaster/internal/records"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

var (
	lagPeriods    = []int{1, 3, 6}
	rollWindows   = []int{3, 6}
	changePeriods = []int{1, 3}
)

// MetricsTracker receives feature build telemetry. A nil tracker is allowed.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCalcDuration(duration time.Duration)
	FeatureSampleCount(count int)
}

// Builder computes feature tables from raw records. It holds no state between
// calls; identical input in identical order gives identical output.
type Builder struct {
	metrics MetricsTracker
}

func NewBuilder(metrics MetricsTracker) *Builder {
	return &Builder{metrics: metrics}
}

// Build returns the training table: every period whose features and next
// period target are all present. The first rows lacking lag history and the
// final row lacking a target are dropped.
func (b *Builder) Build(recs []records.RawRecord) (Table, error) {
	start := time.Now()

	series, err := Aggregate(recs)
	if err != nil {
		b.failed()
		return Table{}, err
	}

	all := Compute(series)
	rows := make([]Row, 0, len(all))
	for _, r := range all {
		if r.HasFeatures() && r.HasTarget() {
			rows = append(rows, r)
		}
	}

	if len(rows) == 0 {
		b.failed()
		return Table{}, fmt.Errorf("%w: %d months of history yield no complete feature rows", ErrValidation, len(series))
	}

	b.observe(start, len(rows))
	log.Debug().
		Int("records", len(recs)).
		Int("months", len(series)).
		Int("rows", len(rows)).
		Str("first_period", rows[0].Period.String()).
		Str("last_period", rows[len(rows)-1].Period.String()).
		Msg("Feature table built")

	return Table{Rows: rows}, nil
}

// Latest returns the final period's row over the full series. Its target is
// unknown; only the features must be present.
func (b *Builder) Latest(recs []records.RawRecord) (Row, error) {
	start := time.Now()

	series, err := Aggregate(recs)
	if err != nil {
		b.failed()
		return Row{}, err
	}

	all := Compute(series)
	last := all[len(all)-1]
	if !last.HasFeatures() {
		b.failed()
		return Row{}, fmt.Errorf("%w: latest period %s lacks feature history (%d months available)", ErrValidation, last.Period, len(series))
	}

	b.observe(start, 1)
	return last, nil
}

func (b *Builder) failed() {
	if b.metrics != nil {
		b.metrics.FeatureErrorsInc()
	}
}

func (b *Builder) observe(start time.Time, rows int) {
	if b.metrics != nil {
		b.metrics.FeatureCalcDuration(time.Since(start))
		b.metrics.FeatureSampleCount(rows)
	}
}

// Compute derives every feature for every period of the series without
// dropping anything. Undefined values are NaN.
func Compute(series MonthlySeries) []Row {
	rev := series.Revenues()
	rows := make([]Row, len(series))

	for i, p := range series {
		month := float64(p.Period.Month)
		r := Row{
			Period:   p.Period,
			Revenue:  p.Revenue,
			MonthSin: math.Sin(2 * math.Pi * month / 12),
			MonthCos: math.Cos(2 * math.Pi * month / 12),
			Target:   math.NaN(),
		}

		lags := make([]float64, len(lagPeriods))
		for j, k := range lagPeriods {
			lags[j] = lag(rev, i, k)
		}
		r.Lag1, r.Lag3, r.Lag6 = lags[0], lags[1], lags[2]

		r.RollMean3 = trailingMean(rev, i, rollWindows[0])
		r.RollMean6 = trailingMean(rev, i, rollWindows[1])
		r.PctChange1 = pctChange(rev, i, changePeriods[0])
		r.PctChange3 = pctChange(rev, i, changePeriods[1])

		if i+1 < len(rev) {
			r.Target = rev[i+1]
		}
		rows[i] = r
	}
	return rows
}

// lag returns rev[i-k], or NaN before the start of the series.
func lag(rev []float64, i, k int) float64 {
	if i-k < 0 {
		return math.NaN()
	}
	return rev[i-k]
}

// trailingMean averages up to w months before i, excluding i itself.
func trailingMean(rev []float64, i, w int) float64 {
	from := i - w
	if from < 0 {
		from = 0
	}
	if from >= i {
		return math.NaN()
	}
	return stat.Mean(rev[from:i], nil)
}

// pctChange is the relative change from rev[i-k] to rev[i]. It is 0 when the
// reference is out of range or zero.
func pctChange(rev []float64, i, k int) float64 {
	if i-k < 0 || rev[i-k] == 0 {
		return 0
	}
	return (rev[i] - rev[i-k]) / rev[i-k]
}

package features

import (
	"fmt"
	"math"

	"revenue-forecaster/internal/common"
)

// ErrValidation is returned for empty, malformed or insufficient input.
var ErrValidation = common.ErrValidation

// Row is one period of the feature table. Missing values are NaN until the
// row is checked for completeness.
type Row struct {
	Period     Period
	Revenue    float64
	Lag1       float64
	Lag3       float64
	Lag6       float64
	RollMean3  float64
	RollMean6  float64
	PctChange1 float64
	PctChange3 float64
	MonthSin   float64
	MonthCos   float64
	Target     float64
}

// Value returns the named column.
func (r Row) Value(col string) (float64, error) {
	switch col {
	case common.ColLag1:
		return r.Lag1, nil
	case common.ColLag3:
		return r.Lag3, nil
	case common.ColLag6:
		return r.Lag6, nil
	case common.ColRollMean3:
		return r.RollMean3, nil
	case common.ColRollMean6:
		return r.RollMean6, nil
	case common.ColPctChange1:
		return r.PctChange1, nil
	case common.ColPctChange3:
		return r.PctChange3, nil
	case common.ColMonthSin:
		return r.MonthSin, nil
	case common.ColMonthCos:
		return r.MonthCos, nil
	case common.ColRevenue:
		return r.Revenue, nil
	case common.ColTarget:
		return r.Target, nil
	}
	return 0, fmt.Errorf("%w: unknown column %q", ErrValidation, col)
}

// Vector assembles the values of cols in the given order.
func (r Row) Vector(cols []string) ([]float64, error) {
	out := make([]float64, len(cols))
	for i, col := range cols {
		v, err := r.Value(col)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// HasFeatures reports whether every model input column is finite.
func (r Row) HasFeatures() bool {
	for _, v := range []float64{
		r.Lag1, r.Lag3, r.Lag6,
		r.RollMean3, r.RollMean6,
		r.PctChange1, r.PctChange3,
		r.MonthSin, r.MonthCos,
	} {
		if !finite(v) {
			return false
		}
	}
	return true
}

// HasTarget reports whether the next period's revenue is known.
func (r Row) HasTarget() bool {
	return finite(r.Target)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Table is the feature table ordered by period. It is never mutated after
// the builder returns it.
type Table struct {
	Rows []Row
}

func (t Table) Len() int {
	return len(t.Rows)
}

// Slice returns the rows in [from, to) as a new table sharing storage.
func (t Table) Slice(from, to int) Table {
	return Table{Rows: t.Rows[from:to]}
}

// Matrix returns the feature vectors of every row for cols.
func (t Table) Matrix(cols []string) ([][]float64, error) {
	X := make([][]float64, len(t.Rows))
	for i, r := range t.Rows {
		v, err := r.Vector(cols)
		if err != nil {
			return nil, err
		}
		X[i] = v
	}
	return X, nil
}

// Targets returns the next-period revenue of every row.
func (t Table) Targets() []float64 {
	y := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		y[i] = r.Target
	}
	return y
}

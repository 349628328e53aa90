// Package features turns normalized transaction records into the
// calendar-indexed feature table used for training and prediction.
//
// The same routine produces both the training table (rows with a known next
// period target) and the single latest row used at prediction time, so the
// lag, window and encoding definitions can never drift between the two.
package features

import (
	"fmt"
	"time"

	"revenue-forecaster/internal/records"

	"github.com/shopspring/decimal"
)

// Period is a calendar year-month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the calendar month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the "2006-01" form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: invalid period %q", ErrValidation, s)
	}
	return PeriodOf(t), nil
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p is strictly earlier than q.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MonthPoint is one entry of a MonthlySeries.
type MonthPoint struct {
	Period  Period
	Revenue float64
}

// MonthlySeries holds one entry per calendar month from the earliest to the
// latest record, contiguous and strictly increasing. Months without
// transactions carry zero revenue.
type MonthlySeries []MonthPoint

// Revenues returns the revenue column in period order.
func (s MonthlySeries) Revenues() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Revenue
	}
	return out
}

// Aggregate sums record prices per calendar month over the full observed span.
// Sums are accumulated as decimals so the monthly totals do not depend on the
// order in which records arrive.
func Aggregate(recs []records.RawRecord) (MonthlySeries, error) {
	if err := records.Validate(recs); err != nil {
		return nil, err
	}

	totals := make(map[Period]decimal.Decimal)
	first, last := PeriodOf(recs[0].Date), PeriodOf(recs[0].Date)
	for _, r := range recs {
		p := PeriodOf(r.Date)
		totals[p] = totals[p].Add(decimal.NewFromFloat(r.Price))
		if p.Before(first) {
			first = p
		}
		if last.Before(p) {
			last = p
		}
	}

	var series MonthlySeries
	for p := first; !last.Before(p); p = p.Next() {
		series = append(series, MonthPoint{Period: p, Revenue: totals[p].InexactFloat64()})
	}
	return series, nil
}

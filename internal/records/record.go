// Package records defines the normalized transaction rows consumed by the
// forecasting pipeline and the sources that supply them.
//
// Records are produced by the ingestion side: every row already carries a
// calendar date and a total (not per-unit) price. The pipeline treats them as
// immutable and read-only.
package records

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"revenue-forecaster/internal/common"
)

// ErrValidation is returned for empty or malformed record sets.
var ErrValidation = common.ErrValidation

// RawRecord is one normalized transaction.
type RawRecord struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Source supplies the full record set for a training or prediction run.
type Source interface {
	Load(ctx context.Context) ([]RawRecord, error)
}

// dateLayouts lists the accepted textual date forms, most specific last.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate parses a record date in any of the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrValidation, s)
}

// Validate checks that the set is non-empty and every record has a date and a
// finite non-negative price.
func Validate(recs []RawRecord) error {
	if len(recs) == 0 {
		return fmt.Errorf("%w: empty record set", ErrValidation)
	}
	for i, r := range recs {
		if r.Date.IsZero() {
			return fmt.Errorf("%w: record %d has no date", ErrValidation, i)
		}
		if math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
			return fmt.Errorf("%w: record %d has non-finite price", ErrValidation, i)
		}
		if r.Price < 0 {
			return fmt.Errorf("%w: record %d has negative price %f", ErrValidation, i, r.Price)
		}
	}
	return nil
}

// Static is an in-memory Source.
type Static []RawRecord

func (s Static) Load(ctx context.Context) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]RawRecord, len(s))
	copy(out, s)
	return out, nil
}

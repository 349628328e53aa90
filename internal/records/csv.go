package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// CSVSource reads a consolidated record file with at least `date` and
// `price` header columns. Other columns are ignored.
type CSVSource struct {
	Path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

func (s *CSVSource) Load(ctx context.Context) ([]RawRecord, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	recs, err := ReadCSV(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}

	log.Info().
		Str("file", s.Path).
		Int("records", len(recs)).
		Msg("CSV records loaded")

	return recs, nil
}

// ReadCSV parses records from r. A row with an unparseable date or price
// fails the whole read.
func ReadCSV(ctx context.Context, r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing CSV header", ErrValidation)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int)
	for i, col := range header {
		indices[strings.ToLower(strings.TrimSpace(col))] = i
	}
	dateIdx, ok := indices["date"]
	if !ok {
		return nil, fmt.Errorf("%w: CSV header has no date column", ErrValidation)
	}
	priceIdx, ok := indices["price"]
	if !ok {
		return nil, fmt.Errorf("%w: CSV header has no price column", ErrValidation)
	}

	var recs []RawRecord
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if dateIdx >= len(row) || priceIdx >= len(row) {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrValidation, line, len(row))
		}

		date, err := ParseDate(row[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[priceIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: unparseable price %q", ErrValidation, line, row[priceIdx])
		}

		recs = append(recs, RawRecord{Date: date, Price: price})
	}

	if err := Validate(recs); err != nil {
		return nil, err
	}
	return recs, nil
}

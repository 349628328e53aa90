package records

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// HTTPSource pulls the normalized record set from the ingestion service as a
// JSON array of {"date": "...", "price": ...} objects.
type HTTPSource struct {
	url  string
	rest *resty.Client
}

type wireRecord struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &HTTPSource{url: url, rest: r}
}

func (s *HTTPSource) Load(ctx context.Context) ([]RawRecord, error) {
	var payload []wireRecord
	resp, err := s.rest.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch records: %s returned %d", s.url, resp.StatusCode())
	}

	recs := make([]RawRecord, 0, len(payload))
	for i, w := range payload {
		date, err := ParseDate(w.Date)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		recs = append(recs, RawRecord{Date: date, Price: w.Price})
	}

	if err := Validate(recs); err != nil {
		return nil, err
	}

	log.Info().
		Str("url", s.url).
		Int("records", len(recs)).
		Dur("latency", resp.Time()).
		Msg("Remote records loaded")

	return recs, nil
}

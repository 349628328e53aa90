// Package audit records pipeline lifecycle events (training runs, candidate
// degradation, predictions) to an append-only sink. Components emit events
// through the Sink interface and never own where the log lives.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event names emitted by the pipeline.
const (
	TrainStarted      = "train.started"
	TrainCompleted    = "train.completed"
	TrainFailed       = "train.failed"
	CandidateDegraded = "candidate.degraded"
	PredictCompleted  = "predict.completed"
	PredictFailed     = "predict.failed"
)

// Event is one audit entry. Fields must be JSON-encodable.
type Event struct {
	Time   time.Time
	Name   string
	Fields map[string]any
}

// Sink accepts events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(event Event) error
}

// FileSink appends one JSON object per event to a file.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

// NewFileSink opens path for appending, creating it and its directory if needed.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileSink{file: f, logger: zerolog.New(f)}, nil
}

func (s *FileSink) Emit(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("audit sink is closed")
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	s.logger.Log().
		Time("time", event.Time.UTC()).
		Str("event", event.Name).
		Fields(event.Fields).
		Send()
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// LogSink forwards events to the global logger.
type LogSink struct{}

func (LogSink) Emit(event Event) error {
	level := zerolog.InfoLevel
	switch event.Name {
	case TrainFailed, PredictFailed:
		level = zerolog.ErrorLevel
	case CandidateDegraded:
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).Fields(event.Fields).Str("event", event.Name).Msg("Audit event")
	return nil
}

// MultiSink emits to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadAll returns the full audit log text, or an empty string if the log does
// not exist yet.
func ReadAll(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read audit log: %w", err)
	}
	return string(data), nil
}

// ReadEvents parses the audit log back into events. A missing log yields none.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var fields map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &fields); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", line, err)
		}

		var ev Event
		if name, ok := fields["event"].(string); ok {
			ev.Name = name
		}
		if ts, ok := fields["time"].(string); ok {
			ev.Time, _ = time.Parse(zerolog.TimeFieldFormat, ts)
		}
		delete(fields, "event")
		delete(fields, "time")
		if len(fields) > 0 {
			ev.Fields = fields
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return events, nil
}

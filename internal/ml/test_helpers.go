package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                 sync.Mutex
	trainingRuns       int
	trainingFailures   int
	trainingDurations  []float64
	candidateMAE       map[string]float64
	degraded           int
	predictions        int
	predictionFailures int
	latencySum         float64
	lastForecast       float64
}

func (m *MockMetrics) TrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) TrainingFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingFailures++
}

func (m *MockMetrics) TrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingDurations = append(m.trainingDurations, v)
}

func (m *MockMetrics) CandidateMAESet(candidate string, mae float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.candidateMAE == nil {
		m.candidateMAE = make(map[string]float64)
	}
	m.candidateMAE[candidate] = mae
}

func (m *MockMetrics) DegradedCandidatesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded++
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionFailures++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) LastForecastSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastForecast = v
}

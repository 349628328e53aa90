package common

// Candidate identifiers, listed in evaluation order
const (
	CandidateBaseline = "baseline"
	CandidateEnsemble = "ensemble"
	CandidateBoosted  = "boosted"
)

// Feature column names
const (
	ColLag1       = "lag_1"
	ColLag3       = "lag_3"
	ColLag6       = "lag_6"
	ColRollMean3  = "roll_mean_3"
	ColRollMean6  = "roll_mean_6"
	ColPctChange1 = "pct_change_1"
	ColPctChange3 = "pct_change_3"
	ColMonthSin   = "month_sin"
	ColMonthCos   = "month_cos"
	ColRevenue    = "revenue"
	ColTarget     = "target_next_period"
)

// CandidateOrder returns the fixed evaluation order. Ties resolve to the earlier entry.
func CandidateOrder() []string {
	return []string{CandidateBaseline, CandidateEnsemble, CandidateBoosted}
}

// FeatureColumns returns the model input columns in artifact order.
func FeatureColumns() []string {
	return []string{
		ColLag1, ColLag3, ColLag6,
		ColRollMean3, ColRollMean6,
		ColPctChange1, ColPctChange3,
		ColMonthSin, ColMonthCos,
	}
}

// IsCandidate reports whether id names a known candidate.
func IsCandidate(id string) bool {
	switch id {
	case CandidateBaseline, CandidateEnsemble, CandidateBoosted:
		return true
	}
	return false
}

// Environment variable keys
const (
	EnvConfigFile          = "CONFIG_FILE"
	EnvDataPath            = "DATA_PATH"
	EnvRecordsFile         = "RECORDS_FILE"
	EnvRecordsURL          = "RECORDS_URL"
	EnvArtifactPath        = "ARTIFACT_PATH"
	EnvArtifactBackend     = "ARTIFACT_BACKEND"
	EnvAuditLogPath        = "AUDIT_LOG_PATH"
	EnvLogLevel            = "LOG_LEVEL"
	EnvMetricsPort         = "METRICS_PORT"
	EnvTrainTimeout        = "TRAIN_TIMEOUT"
	EnvHTTPTimeout         = "HTTP_TIMEOUT"
	EnvSplitRatio          = "TRAIN_SPLIT_RATIO"
	EnvSeed                = "MODEL_SEED"
	EnvEnsembleTrees       = "ENSEMBLE_TREES"
	EnvEnsembleMaxDepth    = "ENSEMBLE_MAX_DEPTH"
	EnvEnsembleMinLeaf     = "ENSEMBLE_MIN_LEAF"
	EnvBoostedEnabled      = "BOOSTED_ENABLED"
	EnvBoostedRounds       = "BOOSTED_ROUNDS"
	EnvBoostedLearningRate = "BOOSTED_LEARNING_RATE"
	EnvBoostedMaxDepth     = "BOOSTED_MAX_DEPTH"
)

// Artifact storage backends
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Configuration defaults
const (
	DefaultDataPath            = "artifacts"
	DefaultRecordsFile         = "artifacts/all_invoices_consolidated.csv"
	DefaultArtifactPath        = "artifacts/final_model.json"
	DefaultArtifactBackend     = BackendFile
	DefaultAuditLogPath        = "artifacts/api.log"
	DefaultLogLevel            = "info"
	DefaultMetricsPort         = 9090
	DefaultSplitRatio          = 0.8
	DefaultSeed                = 42
	DefaultEnsembleTrees       = 200
	DefaultEnsembleMinLeaf     = 1
	DefaultBoostedRounds       = 300
	DefaultBoostedLearningRate = 0.1
	DefaultBoostedMaxDepth     = 3
)

// Validation constants
const (
	MinSplitRatio      = 0.5
	MaxSplitRatio      = 0.95
	MinMetricsPort     = 1024
	MaxMetricsPort     = 65535
	MaxEnsembleTrees   = 5000
	MaxBoostedRounds   = 10000
	MaxTreeDepth       = 64
	MaxBoostedLearning = 1.0
)

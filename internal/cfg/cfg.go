package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"revenue-forecaster/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is built once at process start and passed to each component.
type Settings struct {
	DataPath        string
	RecordsFile     string
	RecordsURL      string
	ArtifactPath    string
	ArtifactBackend string
	AuditLogPath    string
	LogLevel        string
	MetricsPort     int
	TrainTimeout    time.Duration
	HTTPTimeout     time.Duration
	Model           ModelSettings
}

// ModelSettings controls the training split and the fitted candidate families.
type ModelSettings struct {
	SplitRatio          float64
	Seed                uint64
	EnsembleTrees       int
	EnsembleMaxDepth    int // 0 grows trees until leaves are pure
	EnsembleMinLeaf     int
	BoostedEnabled      bool
	BoostedRounds       int
	BoostedLearningRate float64
	BoostedMaxDepth     int
}

type ConfigFile struct {
	Data struct {
		Path        string `yaml:"path"`
		RecordsFile string `yaml:"recordsFile"`
		RecordsURL  string `yaml:"recordsURL"`
		HTTPTimeout string `yaml:"httpTimeout"`
	} `yaml:"data"`

	Artifact struct {
		Path    string `yaml:"path"`
		Backend string `yaml:"backend"`
	} `yaml:"artifact"`

	Model struct {
		SplitRatio   float64 `yaml:"splitRatio"`
		Seed         uint64  `yaml:"seed"`
		TrainTimeout string  `yaml:"trainTimeout"`
		Ensemble     struct {
			Trees    int `yaml:"trees"`
			MaxDepth int `yaml:"maxDepth"`
			MinLeaf  int `yaml:"minLeaf"`
		} `yaml:"ensemble"`
		Boosted struct {
			Enabled      *bool   `yaml:"enabled"`
			Rounds       int     `yaml:"rounds"`
			LearningRate float64 `yaml:"learningRate"`
			MaxDepth     int     `yaml:"maxDepth"`
		} `yaml:"boosted"`
	} `yaml:"model"`

	System struct {
		AuditLogPath string `yaml:"auditLogPath"`
		LogLevel     string `yaml:"logLevel"`
		MetricsPort  int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE
// if set, and finally applies environment overrides.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	trainTimeout, err := time.ParseDuration(config.Model.TrainTimeout)
	if err != nil {
		trainTimeout = 10 * time.Minute
	}

	httpTimeout, err := time.ParseDuration(config.Data.HTTPTimeout)
	if err != nil {
		httpTimeout = 10 * time.Second
	}

	boostedEnabled := true
	if config.Model.Boosted.Enabled != nil {
		boostedEnabled = *config.Model.Boosted.Enabled
	}

	settings := Settings{
		DataPath:        getEnvOrDefault(common.EnvDataPath, orDefault(config.Data.Path, common.DefaultDataPath)),
		RecordsFile:     getEnvOrDefault(common.EnvRecordsFile, orDefault(config.Data.RecordsFile, common.DefaultRecordsFile)),
		RecordsURL:      getEnvOrDefault(common.EnvRecordsURL, config.Data.RecordsURL),
		ArtifactPath:    getEnvOrDefault(common.EnvArtifactPath, orDefault(config.Artifact.Path, common.DefaultArtifactPath)),
		ArtifactBackend: getEnvOrDefault(common.EnvArtifactBackend, orDefault(config.Artifact.Backend, common.DefaultArtifactBackend)),
		AuditLogPath:    getEnvOrDefault(common.EnvAuditLogPath, orDefault(config.System.AuditLogPath, common.DefaultAuditLogPath)),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		MetricsPort:     getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		TrainTimeout:    getDurationOrDefault(common.EnvTrainTimeout, trainTimeout),
		HTTPTimeout:     getDurationOrDefault(common.EnvHTTPTimeout, httpTimeout),
		Model: ModelSettings{
			SplitRatio:          getFloatFromEnvOrConfig(common.EnvSplitRatio, config.Model.SplitRatio, common.DefaultSplitRatio),
			Seed:                getUintFromEnvOrConfig(common.EnvSeed, config.Model.Seed, common.DefaultSeed),
			EnsembleTrees:       getIntFromEnvOrConfig(common.EnvEnsembleTrees, config.Model.Ensemble.Trees, common.DefaultEnsembleTrees),
			EnsembleMaxDepth:    getIntFromEnvOrConfig(common.EnvEnsembleMaxDepth, config.Model.Ensemble.MaxDepth, 0),
			EnsembleMinLeaf:     getIntFromEnvOrConfig(common.EnvEnsembleMinLeaf, config.Model.Ensemble.MinLeaf, common.DefaultEnsembleMinLeaf),
			BoostedEnabled:      getBoolOrDefault(common.EnvBoostedEnabled, boostedEnabled),
			BoostedRounds:       getIntFromEnvOrConfig(common.EnvBoostedRounds, config.Model.Boosted.Rounds, common.DefaultBoostedRounds),
			BoostedLearningRate: getFloatFromEnvOrConfig(common.EnvBoostedLearningRate, config.Model.Boosted.LearningRate, common.DefaultBoostedLearningRate),
			BoostedMaxDepth:     getIntFromEnvOrConfig(common.EnvBoostedMaxDepth, config.Model.Boosted.MaxDepth, common.DefaultBoostedMaxDepth),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:        getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		RecordsFile:     getEnvOrDefault(common.EnvRecordsFile, common.DefaultRecordsFile),
		RecordsURL:      os.Getenv(common.EnvRecordsURL), // optional
		ArtifactPath:    getEnvOrDefault(common.EnvArtifactPath, common.DefaultArtifactPath),
		ArtifactBackend: getEnvOrDefault(common.EnvArtifactBackend, common.DefaultArtifactBackend),
		AuditLogPath:    getEnvOrDefault(common.EnvAuditLogPath, common.DefaultAuditLogPath),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		MetricsPort:     getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		TrainTimeout:    getDurationOrDefault(common.EnvTrainTimeout, 10*time.Minute),
		HTTPTimeout:     getDurationOrDefault(common.EnvHTTPTimeout, 10*time.Second),
		Model:           DefaultModelSettings(),
	}

	settings.Model.SplitRatio = getFloatOrDefault(common.EnvSplitRatio, settings.Model.SplitRatio)
	settings.Model.Seed = getUintOrDefault(common.EnvSeed, settings.Model.Seed)
	settings.Model.EnsembleTrees = getIntOrDefault(common.EnvEnsembleTrees, settings.Model.EnsembleTrees)
	settings.Model.EnsembleMaxDepth = getIntOrDefault(common.EnvEnsembleMaxDepth, settings.Model.EnsembleMaxDepth)
	settings.Model.EnsembleMinLeaf = getIntOrDefault(common.EnvEnsembleMinLeaf, settings.Model.EnsembleMinLeaf)
	settings.Model.BoostedEnabled = getBoolOrDefault(common.EnvBoostedEnabled, settings.Model.BoostedEnabled)
	settings.Model.BoostedRounds = getIntOrDefault(common.EnvBoostedRounds, settings.Model.BoostedRounds)
	settings.Model.BoostedLearningRate = getFloatOrDefault(common.EnvBoostedLearningRate, settings.Model.BoostedLearningRate)
	settings.Model.BoostedMaxDepth = getIntOrDefault(common.EnvBoostedMaxDepth, settings.Model.BoostedMaxDepth)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// DefaultModelSettings returns the model parameters used when nothing is configured.
func DefaultModelSettings() ModelSettings {
	return ModelSettings{
		SplitRatio:          common.DefaultSplitRatio,
		Seed:                common.DefaultSeed,
		EnsembleTrees:       common.DefaultEnsembleTrees,
		EnsembleMinLeaf:     common.DefaultEnsembleMinLeaf,
		BoostedEnabled:      true,
		BoostedRounds:       common.DefaultBoostedRounds,
		BoostedLearningRate: common.DefaultBoostedLearningRate,
		BoostedMaxDepth:     common.DefaultBoostedMaxDepth,
	}
}

// validateSettings performs range checks on every configured value
func validateSettings(settings *Settings) error {
	if settings.ArtifactPath == "" {
		return fmt.Errorf("artifact path cannot be empty")
	}
	switch settings.ArtifactBackend {
	case common.BackendFile:
	case common.BackendBolt:
		if settings.DataPath == "" {
			return fmt.Errorf("data path is required for the %s artifact backend", common.BackendBolt)
		}
	default:
		return fmt.Errorf("unknown artifact backend %q", settings.ArtifactBackend)
	}

	if settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}
	if settings.TrainTimeout < 0 {
		return fmt.Errorf("train timeout cannot be negative, got %v", settings.TrainTimeout)
	}
	if settings.HTTPTimeout < time.Second || settings.HTTPTimeout > 5*time.Minute {
		return fmt.Errorf("HTTP timeout must be between 1s and 5m, got %v", settings.HTTPTimeout)
	}

	return validateModelSettings(settings.Model)
}

func validateModelSettings(m ModelSettings) error {
	if m.SplitRatio < common.MinSplitRatio || m.SplitRatio > common.MaxSplitRatio {
		return fmt.Errorf("split ratio must be between %.2f and %.2f, got %f", common.MinSplitRatio, common.MaxSplitRatio, m.SplitRatio)
	}
	if m.EnsembleTrees <= 0 || m.EnsembleTrees > common.MaxEnsembleTrees {
		return fmt.Errorf("ensemble trees must be between 1 and %d, got %d", common.MaxEnsembleTrees, m.EnsembleTrees)
	}
	if m.EnsembleMaxDepth < 0 || m.EnsembleMaxDepth > common.MaxTreeDepth {
		return fmt.Errorf("ensemble max depth must be between 0 and %d, got %d", common.MaxTreeDepth, m.EnsembleMaxDepth)
	}
	if m.EnsembleMinLeaf <= 0 {
		return fmt.Errorf("ensemble min leaf must be positive, got %d", m.EnsembleMinLeaf)
	}
	if m.BoostedRounds <= 0 || m.BoostedRounds > common.MaxBoostedRounds {
		return fmt.Errorf("boosted rounds must be between 1 and %d, got %d", common.MaxBoostedRounds, m.BoostedRounds)
	}
	if m.BoostedLearningRate <= 0 || m.BoostedLearningRate > common.MaxBoostedLearning {
		return fmt.Errorf("boosted learning rate must be in (0, %.1f], got %f", common.MaxBoostedLearning, m.BoostedLearningRate)
	}
	if m.BoostedMaxDepth <= 0 || m.BoostedMaxDepth > common.MaxTreeDepth {
		return fmt.Errorf("boosted max depth must be between 1 and %d, got %d", common.MaxTreeDepth, m.BoostedMaxDepth)
	}
	return nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getUintFromEnvOrConfig(key string, configValue, defaultValue uint64) uint64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getUintOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

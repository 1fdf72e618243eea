// Package cfg loads service configuration from a YAML file with environment
// variable overrides, falling back to environment variables alone when no
// file is configured.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath           string
	APIPort            int
	MetricsPort        int
	WebhookURL         string
	RiskMedium         float64
	RiskHigh           float64
	Roster             []string
	SplitRatio         float64
	CVFolds            int
	Seed               int64
	ImbalanceThreshold float64
	CandidateTimeout   time.Duration
	TrainWorkers       int
}

type ConfigFile struct {
	Risk struct {
		MediumThreshold float64 `yaml:"mediumThreshold"`
		HighThreshold   float64 `yaml:"highThreshold"`
	} `yaml:"risk"`

	Training struct {
		Candidates         []string `yaml:"candidates"`
		SplitRatio         float64  `yaml:"splitRatio"`
		CVFolds            int      `yaml:"cvFolds"`
		Seed               int64    `yaml:"seed"`
		ImbalanceThreshold float64  `yaml:"imbalanceThreshold"`
		CandidateTimeout   string   `yaml:"candidateTimeout"`
		Workers            int      `yaml:"workers"`
	} `yaml:"training"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		APIPort     int    `yaml:"apiPort"`
		MetricsPort int    `yaml:"metricsPort"`
		WebhookURL  string `yaml:"webhookURL"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
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

	candidateTimeout, err := time.ParseDuration(config.Training.CandidateTimeout)
	if err != nil {
		candidateTimeout = 2 * time.Minute
	}

	settings := Settings{
		DataPath:           getEnvOrDefault("DATA_PATH", config.System.DataPath),
		APIPort:            getIntFromEnvOrConfig("API_PORT", config.System.APIPort),
		MetricsPort:        getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		WebhookURL:         getEnvOrDefault("WEBHOOK_URL", config.System.WebhookURL),
		RiskMedium:         getFloatFromEnvOrConfig("RISK_MEDIUM_THRESHOLD", config.Risk.MediumThreshold),
		RiskHigh:           getFloatFromEnvOrConfig("RISK_HIGH_THRESHOLD", config.Risk.HighThreshold),
		Roster:             getCandidatesFromEnvOrConfig(config.Training.Candidates),
		SplitRatio:         getFloatFromEnvOrConfig("SPLIT_RATIO", config.Training.SplitRatio),
		CVFolds:            getIntFromEnvOrConfig("CV_FOLDS", config.Training.CVFolds),
		Seed:               int64(getIntFromEnvOrConfig("TRAIN_SEED", int(config.Training.Seed))),
		ImbalanceThreshold: getFloatFromEnvOrConfig("IMBALANCE_THRESHOLD", config.Training.ImbalanceThreshold),
		CandidateTimeout:   candidateTimeout,
		TrainWorkers:       getIntFromEnvOrConfig("TRAIN_WORKERS", config.Training.Workers),
	}

	applyDefaults(&settings)
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:           os.Getenv("DATA_PATH"), // optional
		APIPort:            getIntOrDefault("API_PORT", 5000),
		MetricsPort:        getIntOrDefault("METRICS_PORT", 8080),
		WebhookURL:         os.Getenv("WEBHOOK_URL"), // optional
		RiskMedium:         getFloatOrDefault("RISK_MEDIUM_THRESHOLD", 0.33),
		RiskHigh:           getFloatOrDefault("RISK_HIGH_THRESHOLD", 0.66),
		Roster:             splitOrDefault(os.Getenv("CANDIDATES"), nil),
		SplitRatio:         getFloatOrDefault("SPLIT_RATIO", 0.2),
		CVFolds:            getIntOrDefault("CV_FOLDS", 5),
		Seed:               int64(getIntOrDefault("TRAIN_SEED", 42)),
		ImbalanceThreshold: getFloatOrDefault("IMBALANCE_THRESHOLD", 0.10),
		CandidateTimeout:   getDurationOrDefault("CANDIDATE_TIMEOUT", 2*time.Minute),
		TrainWorkers:       getIntOrDefault("TRAIN_WORKERS", 0),
	}

	applyDefaults(&settings)
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func applyDefaults(s *Settings) {
	if s.APIPort == 0 {
		s.APIPort = 5000
	}
	if s.MetricsPort == 0 {
		s.MetricsPort = 8080
	}
	if s.RiskMedium == 0 {
		s.RiskMedium = 0.33
	}
	if s.RiskHigh == 0 {
		s.RiskHigh = 0.66
	}
	if s.SplitRatio == 0 {
		s.SplitRatio = 0.2
	}
	if s.CVFolds == 0 {
		s.CVFolds = 5
	}
	if s.Seed == 0 {
		s.Seed = 42
	}
	if s.ImbalanceThreshold == 0 {
		s.ImbalanceThreshold = 0.10
	}
	if s.CandidateTimeout == 0 {
		s.CandidateTimeout = 2 * time.Minute
	}
}

// validateSettings performs range validation of configuration values.
func validateSettings(s *Settings) error {
	if s.APIPort < 1024 || s.APIPort > 65535 {
		return fmt.Errorf("API port must be between 1024 and 65535, got %d", s.APIPort)
	}
	if s.MetricsPort < 1024 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", s.MetricsPort)
	}
	if s.MetricsPort == s.APIPort {
		return fmt.Errorf("metrics port and API port must differ, both are %d", s.APIPort)
	}
	if s.RiskMedium <= 0 || s.RiskMedium >= 1 {
		return fmt.Errorf("medium risk threshold must be between 0 and 1, got %f", s.RiskMedium)
	}
	if s.RiskHigh <= s.RiskMedium || s.RiskHigh >= 1 {
		return fmt.Errorf("high risk threshold must be between the medium threshold and 1, got %f", s.RiskHigh)
	}
	if s.SplitRatio <= 0 || s.SplitRatio >= 0.5 {
		return fmt.Errorf("split ratio must be between 0 and 0.5, got %f", s.SplitRatio)
	}
	if s.CVFolds < 2 || s.CVFolds > 20 {
		return fmt.Errorf("cross-validation folds must be between 2 and 20, got %d", s.CVFolds)
	}
	if s.ImbalanceThreshold <= 0 || s.ImbalanceThreshold >= 0.5 {
		return fmt.Errorf("imbalance threshold must be between 0 and 0.5, got %f", s.ImbalanceThreshold)
	}
	if s.CandidateTimeout < time.Second || s.CandidateTimeout > time.Hour {
		return fmt.Errorf("candidate timeout must be between 1s and 1h, got %v", s.CandidateTimeout)
	}
	if s.TrainWorkers < 0 || s.TrainWorkers > 256 {
		return fmt.Errorf("train workers must be between 0 and 256, got %d", s.TrainWorkers)
	}
	return nil
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getCandidatesFromEnvOrConfig(configCandidates []string) []string {
	if env := os.Getenv("CANDIDATES"); env != "" {
		return strings.Split(env, ",")
	}
	return configCandidates
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

// =============================================================================
// Invoice Rollup - Configuration Module
// =============================================================================
//
// This module is responsible for loading the main application configuration.
// One YAML file drives the whole pipeline: where invoices arrive, where they
// are archived, where reports are written, how the canonical-name store and
// the name-resolution oracle behave, and which column aliases are recognized.
//
// CONFIGURATION FILE (config.yaml):
//   watch_dir: ./watch
//   processed_dir: ./processed
//   output_dir: ./output
//   mapping_store_path: ./mapping_store.csv
//   column_aliases:
//     - target: 作業項目/商品名
//       aliases: [作業内容, サービス項目, 作業項目, 商品, 品名, 内容, 商品名]
//   resolver:
//     endpoint: https://api.openai.com/v1
//     model: gpt-4.1-nano
//     api_key_env: OPENAI_API_KEY
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// WatchDir is where subcontractors drop their invoice files.
	// Default: "./watch"
	WatchDir string `yaml:"watch_dir"`

	// ProcessedDir receives successfully ingested files, one subdirectory
	// per department. It is also scanned when a month is recomputed.
	// Default: "./processed"
	ProcessedDir string `yaml:"processed_dir"`

	// FailedDir receives files whose ingestion failed.
	// Default: "./failed"
	FailedDir string `yaml:"failed_dir"`

	// OutputDir is the root of the report tree.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// CompanyLabel names the company-wide aggregate directory and files.
	// Default: "全社統合"
	CompanyLabel string `yaml:"company_label"`

	// =========================================================================
	// INPUT SETTINGS
	// =========================================================================

	// ValidExtensions lists the file extensions considered for ingestion.
	// Default: [".csv", ".xlsx", ".xlsm"]
	ValidExtensions []string `yaml:"valid_extensions"`

	// FilenameMarkers are trailing "_MARKER" suffixes removed before the
	// filename is parsed. Matching is case-insensitive.
	// Default: ["WEB"]
	FilenameMarkers []string `yaml:"filename_markers"`

	// CSVEncoding is "auto", "utf-8" or "shift_jis".
	// Default: "auto"
	CSVEncoding string `yaml:"csv_encoding"`

	// ColumnAliases maps standard column names to the spellings seen in
	// subcontractor files. Order matters: earlier targets bind first.
	ColumnAliases []ColumnAlias `yaml:"column_aliases"`

	// =========================================================================
	// CANONICALIZATION SETTINGS
	// =========================================================================

	// MappingStorePath is the append-only cleaned->canonical log.
	// Default: "./mapping_store.csv"
	MappingStorePath string `yaml:"mapping_store_path"`

	// Resolver configures the external name-resolution oracle.
	Resolver ResolverConfig `yaml:"resolver"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// UnmatchedLog receives one CSV row per recoverable failure.
	// Default: "./logs/unmatched.csv"
	UnmatchedLog string `yaml:"unmatched_log"`

	// LogFile is the rotating operational log.
	// Default: "./logs/watch.log"
	LogFile string `yaml:"log_file"`

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json".
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// LogMaxSizeMB is the size at which the log file rotates.
	// Default: 1
	LogMaxSizeMB int `yaml:"log_max_size_mb"`

	// LogMaxBackups is the number of rotated files kept.
	// Default: 5
	LogMaxBackups int `yaml:"log_max_backups"`

	// ConsoleLog mirrors the log to stdout.
	ConsoleLog bool `yaml:"console_log"`
}

// ColumnAlias binds a standard column name to its known spellings.
type ColumnAlias struct {
	Target  string   `yaml:"target"`
	Aliases []string `yaml:"aliases"`
}

// ResolverConfig configures the oracle client and its retry policy.
type ResolverConfig struct {
	// Endpoint is the base URL of an OpenAI-compatible API.
	Endpoint string `yaml:"endpoint"`

	// Model is the chat model name.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a single oracle request.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond throttles oracle calls. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration `yaml:"base_delay"`

	// Multiplier grows the delay after each retry.
	Multiplier float64 `yaml:"multiplier"`

	// MaxJitter is the upper bound of the uniform jitter added to each delay.
	MaxJitter time.Duration `yaml:"max_jitter"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// APIKey returns the key from the configured environment variable.
func (r ResolverConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultColumnAliases returns the alias table used when none is configured.
func DefaultColumnAliases() []ColumnAlias {
	return []ColumnAlias{
		{
			Target: "作業項目/商品名",
			Aliases: []string{
				"作業内容", "サービス項目", "作業項目",
				"商品", "品名", "内容", "商品名",
			},
		},
		{
			Target:  "日付",
			Aliases: []string{"日付", "作業日", "納品日", "発送日", "伝票日付", "date"},
		},
	}
}

// Default returns a configuration with every default applied.
func Default() *MainConfig {
	cfg := &MainConfig{}
	applyMainConfigDefaults(cfg)
	return cfg
}

// =============================================================================
// LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads configPath, falling back to defaults when the file does
// not exist and allowMissing is set.
func LoadOrDefault(configPath string, allowMissing bool) (*MainConfig, error) {
	cfg, err := LoadMainConfig(configPath)
	if err == nil {
		return cfg, nil
	}
	if allowMissing && errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := validateMainConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return nil, err
}

// applyMainConfigDefaults sets default values for any unset fields.
func applyMainConfigDefaults(config *MainConfig) {
	if config.WatchDir == "" {
		config.WatchDir = "./watch"
	}
	if config.ProcessedDir == "" {
		config.ProcessedDir = "./processed"
	}
	if config.FailedDir == "" {
		config.FailedDir = "./failed"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.CompanyLabel == "" {
		config.CompanyLabel = "全社統合"
	}
	if len(config.ValidExtensions) == 0 {
		config.ValidExtensions = []string{".csv", ".xlsx", ".xlsm"}
	}
	if config.FilenameMarkers == nil {
		config.FilenameMarkers = []string{"WEB"}
	}
	if config.CSVEncoding == "" {
		config.CSVEncoding = "auto"
	}
	if len(config.ColumnAliases) == 0 {
		config.ColumnAliases = DefaultColumnAliases()
	}
	if config.MappingStorePath == "" {
		config.MappingStorePath = "./mapping_store.csv"
	}
	if config.UnmatchedLog == "" {
		config.UnmatchedLog = "./logs/unmatched.csv"
	}
	if config.LogFile == "" {
		config.LogFile = "./logs/watch.log"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}
	if config.LogMaxSizeMB == 0 {
		config.LogMaxSizeMB = 1
	}
	if config.LogMaxBackups == 0 {
		config.LogMaxBackups = 5
	}

	r := &config.Resolver
	if r.Endpoint == "" {
		r.Endpoint = "https://api.openai.com/v1"
	}
	if r.Model == "" {
		r.Model = "gpt-4.1-nano"
	}
	if r.APIKeyEnv == "" {
		r.APIKeyEnv = "OPENAI_API_KEY"
	}
	if r.Timeout == 0 {
		r.Timeout = 30 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 4
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = 800 * time.Millisecond
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}
	if r.MaxJitter == 0 {
		r.MaxJitter = 250 * time.Millisecond
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 64
	}
}

// validateMainConfig checks the configuration and creates missing directories.
func validateMainConfig(config *MainConfig) error {
	switch config.CSVEncoding {
	case "auto", "utf-8", "shift_jis":
	default:
		return fmt.Errorf("unsupported csv_encoding %q", config.CSVEncoding)
	}

	if config.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("resolver.max_attempts must be at least 1")
	}

	for i, alias := range config.ColumnAliases {
		if alias.Target == "" {
			return fmt.Errorf("column_aliases[%d]: target is required", i)
		}
	}

	dirs := []string{
		config.WatchDir,
		config.ProcessedDir,
		config.FailedDir,
		config.OutputDir,
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Scoring model types understood by the index backends.
const (
	ModelBM25        = "bm25"
	ModelLMDirichlet = "lm_dirichlet"
)

// Config holds all application configuration.
type Config struct {
	// Input files and run output
	Data DataConfig `yaml:"data"`

	// Index backend selection
	Index IndexConfig `yaml:"index"`

	// Elasticsearch backend settings
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`

	// Qdrant backend settings
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Scoring models to evaluate, in report order
	Models []ModelConfig `yaml:"models" ignored:"true"`

	// Retrieval runner settings
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Evaluation settings
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Report output and history
	Report ReportConfig `yaml:"report"`

	// Event bus settings
	Bus BusConfig `yaml:"bus"`

	// HTTP API settings
	Server ServerConfig `yaml:"server"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// DataConfig locates the evaluation inputs.
type DataConfig struct {
	CorpusPaths []string `envconfig:"RICE_EVAL_CORPUS" yaml:"corpus"`
	QueriesPath string   `envconfig:"RICE_EVAL_QUERIES" yaml:"queries"`
	QrelsPath   string   `envconfig:"RICE_EVAL_QRELS" yaml:"qrels"`
	RunDir      string   `envconfig:"RICE_EVAL_RUN_DIR" yaml:"run_dir"`
}

// IndexConfig selects and tunes the text index capability.
type IndexConfig struct {
	Backend   string `envconfig:"RICE_EVAL_INDEX_BACKEND" yaml:"backend"`
	BatchSize int    `envconfig:"RICE_EVAL_INDEX_BATCH_SIZE" yaml:"batch_size"`
}

// ElasticsearchConfig holds Elasticsearch connection settings.
type ElasticsearchConfig struct {
	Addresses []string `envconfig:"RICE_EVAL_ES_ADDRESSES" yaml:"addresses"`
	Username  string   `envconfig:"RICE_EVAL_ES_USERNAME" yaml:"username"`
	Password  string   `envconfig:"RICE_EVAL_ES_PASSWORD" yaml:"password"`
	Index     string   `envconfig:"RICE_EVAL_ES_INDEX" yaml:"index"`
	Workers   int      `envconfig:"RICE_EVAL_ES_WORKERS" yaml:"workers"`

	// FlushBytes is the bulk indexer flush threshold.
	FlushBytes int `envconfig:"RICE_EVAL_ES_FLUSH_BYTES" yaml:"flush_bytes"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey     string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	Collection string `envconfig:"RICE_EVAL_QDRANT_COLLECTION" yaml:"collection"`
	Timeout    int    `envconfig:"RICE_EVAL_QDRANT_TIMEOUT" yaml:"timeout"` // seconds
}

// ModelConfig describes one named scoring model.
type ModelConfig struct {
	Name string  `yaml:"name"`
	Type string  `yaml:"type"`
	K1   float64 `yaml:"k1,omitempty"`
	B    float64 `yaml:"b,omitempty"`
	Mu   float64 `yaml:"mu,omitempty"`
}

// RetrievalConfig holds retrieval runner settings.
type RetrievalConfig struct {
	TopK           int     `envconfig:"RICE_EVAL_TOP_K" yaml:"top_k"`
	Workers        int     `envconfig:"RICE_EVAL_WORKERS" yaml:"workers"`
	ParallelModels bool    `envconfig:"RICE_EVAL_PARALLEL_MODELS" yaml:"parallel_models"`
	RateLimit      float64 `envconfig:"RICE_EVAL_RATE_LIMIT" yaml:"rate_limit"` // searches/sec, 0 = unlimited
}

// EvaluationConfig holds metric settings.
type EvaluationConfig struct {
	Cutoffs []int `envconfig:"RICE_EVAL_CUTOFFS" yaml:"cutoffs"`
}

// ReportConfig holds report rendering and history settings.
type ReportConfig struct {
	Format   string `envconfig:"RICE_EVAL_REPORT_FORMAT" yaml:"format"`
	History  string `envconfig:"RICE_EVAL_HISTORY" yaml:"history"`
	RedisURL string `envconfig:"RICE_EVAL_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RICE_EVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RICE_EVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	EventLog     string `envconfig:"RICE_EVAL_EVENT_LOG" yaml:"event_log"` // JSONL journal path, empty disables
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host      string  `envconfig:"RICE_EVAL_HOST" yaml:"host"`
	Port      int     `envconfig:"RICE_EVAL_PORT" yaml:"port"`
	RateLimit float64 `envconfig:"RICE_EVAL_HTTP_RATE_LIMIT" yaml:"rate_limit"` // requests/sec per client, 0 = unlimited
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_EVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_EVAL_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns a validated configuration holding only defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// DefaultModels mirrors the classic comparison of a probabilistic and a
// language-model ranking function.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{Name: "bm25", Type: ModelBM25, K1: 1.2, B: 0.75},
		{Name: "lmd", Type: ModelLMDirichlet, Mu: 2000},
	}
}

func setDefaults(cfg *Config) {
	cfg.Data = DataConfig{
		QueriesPath: "queries.jsonl",
		QrelsPath:   "test.tsv",
		RunDir:      ".",
	}

	cfg.Index = IndexConfig{
		Backend:   "memory",
		BatchSize: 500,
	}

	cfg.Elasticsearch = ElasticsearchConfig{
		Addresses:  []string{"http://localhost:9200"},
		Index:      "rice-eval",
		Workers:    2,
		FlushBytes: 5 << 20,
	}

	cfg.Qdrant = QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "eval",
		Timeout:    30,
	}

	cfg.Models = DefaultModels()

	cfg.Retrieval = RetrievalConfig{
		TopK:    100,
		Workers: 4,
	}

	cfg.Evaluation = EvaluationConfig{
		Cutoffs: []int{10, 100},
	}

	cfg.Report = ReportConfig{
		Format:   "text",
		History:  "memory",
		RedisURL: "redis://localhost:6379/0",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Server = ServerConfig{
		Host:      "0.0.0.0",
		Port:      8090,
		RateLimit: 10,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	validBackends := map[string]bool{"memory": true, "elasticsearch": true, "qdrant": true}
	if !validBackends[c.Index.Backend] {
		errs = append(errs, fmt.Sprintf("invalid index backend: %s (must be memory, elasticsearch, or qdrant)", c.Index.Backend))
	}

	if c.Index.BatchSize < 1 {
		errs = append(errs, "index batch_size must be positive")
	}

	if c.Index.Backend == "elasticsearch" && len(c.Elasticsearch.Addresses) == 0 {
		errs = append(errs, "elasticsearch addresses must not be empty")
	}
	if c.Elasticsearch.FlushBytes < 0 {
		errs = append(errs, "elasticsearch flush_bytes must not be negative")
	}

	// Models validation
	if len(c.Models) == 0 {
		errs = append(errs, "at least one scoring model must be configured")
	}
	seen := make(map[string]bool, len(c.Models))
	runFiles := make(map[string]string, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, fmt.Sprintf("models[%d]: name is required", i))
			continue
		}
		if strings.ContainsAny(m.Name, " \t\n") {
			errs = append(errs, fmt.Sprintf("model %s: name must not contain whitespace", m.Name))
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Sprintf("model %s: duplicate name", m.Name))
		}
		seen[m.Name] = true

		file := strings.ToLower(RunFileName(m.Name))
		if other, ok := runFiles[file]; ok && other != m.Name {
			errs = append(errs, fmt.Sprintf("model %s: run file %s collides with model %s", m.Name, RunFileName(m.Name), other))
		}
		runFiles[file] = m.Name

		switch m.Type {
		case ModelBM25:
			if m.K1 < 0 || m.B < 0 || m.B > 1 {
				errs = append(errs, fmt.Sprintf("model %s: k1 must be >= 0 and b within [0,1]", m.Name))
			}
		case ModelLMDirichlet:
			if m.Mu < 0 {
				errs = append(errs, fmt.Sprintf("model %s: mu must be >= 0", m.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("model %s: invalid type %s (must be bm25 or lm_dirichlet)", m.Name, m.Type))
		}
	}

	// Retrieval validation
	if c.Retrieval.TopK < 1 {
		errs = append(errs, "top_k must be positive")
	}

	if c.Retrieval.Workers < 1 {
		errs = append(errs, "workers must be positive")
	}

	if c.Retrieval.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	// Evaluation validation
	if len(c.Evaluation.Cutoffs) == 0 {
		errs = append(errs, "at least one evaluation cutoff is required")
	}
	for _, k := range c.Evaluation.Cutoffs {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("invalid cutoff %d (must be positive)", k))
		}
	}

	// Report validation
	validFormats := map[string]bool{"text": true, "markdown": true, "json": true}
	if !validFormats[c.Report.Format] {
		errs = append(errs, fmt.Sprintf("invalid report format: %s (must be text, markdown, or json)", c.Report.Format))
	}

	validHistory := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validHistory[c.Report.History] {
		errs = append(errs, fmt.Sprintf("invalid history store: %s (must be memory, redis, or none)", c.Report.History))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, "server rate_limit must not be negative")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Model returns the configured model with the given name.
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Address returns the HTTP server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// RunFileName is the run file base name for a model. Names that differ only
// in replaced characters or letter case map to the same file on some
// filesystems, so Validate rejects them.
func RunFileName(model string) string {
	return unsafeFileChars.ReplaceAllString(model, "_") + ".run"
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the preciorag service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	CORS       CORSConfig       `yaml:"cors"`
	Milvus     MilvusConfig     `yaml:"milvus"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ask        AskConfig        `yaml:"ask"`
	Cache      CacheConfig      `yaml:"cache"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// MilvusConfig holds vector store connection and collection settings.
type MilvusConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	Dim        int    `yaml:"dim"`
	Index      string `yaml:"index"`  // hnsw, ivf_flat
	Metric     string `yaml:"metric"` // ip, cosine, l2
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	Backend       string `yaml:"backend"` // ollama, openai
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"` // openai backend
	APIKey        string `yaml:"api_key"`  // openai backend
	Host          string `yaml:"host"`     // ollama backend
	QueryPrefix   string `yaml:"query_prefix"`
	PassagePrefix string `yaml:"passage_prefix"`
	TimeoutSec    int    `yaml:"timeout_sec"`
}

// GenerationConfig holds text-generation backend settings.
type GenerationConfig struct {
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// AskConfig holds answer-gate defaults.
type AskConfig struct {
	AbstainThreshold float64 `yaml:"abstain_threshold"`
	TopK             int     `yaml:"top_k"`
}

// CacheConfig holds the optional embedding cache settings. The cache is
// disabled unless at least one address is given.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"`
}

// IngestConfig holds CSV ingestion settings.
type IngestConfig struct {
	BatchSize int    `yaml:"batch_size"`
	CSVPath   string `yaml:"csv_path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR} / ${VAR:-default}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// The streaming endpoint holds the response open while the model
		// generates; give writes more room than reads.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.CORS.Origins) == 0 {
		c.CORS.Origins = []string{"http://localhost:4200", "http://localhost:5173"}
	}
	if c.Milvus.Host == "" {
		c.Milvus.Host = "127.0.0.1"
	}
	if c.Milvus.Port <= 0 {
		c.Milvus.Port = 19530
	}
	if c.Milvus.Collection == "" {
		c.Milvus.Collection = "retail_products"
	}
	if c.Milvus.Dim <= 0 {
		c.Milvus.Dim = 768
	}
	if c.Milvus.Index == "" {
		c.Milvus.Index = "hnsw"
	}
	if c.Milvus.Metric == "" {
		c.Milvus.Metric = "ip"
	}
	if c.Milvus.TimeoutSec <= 0 {
		c.Milvus.TimeoutSec = 10
	}
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = "ollama"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "intfloat/multilingual-e5-base"
	}
	if c.Embedding.Host == "" {
		c.Embedding.Host = "http://127.0.0.1:11434"
	}
	if c.Embedding.QueryPrefix == "" && isE5(c.Embedding.Model) {
		c.Embedding.QueryPrefix = "query: "
	}
	if c.Embedding.PassagePrefix == "" && isE5(c.Embedding.Model) {
		c.Embedding.PassagePrefix = "passage: "
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Generation.Host == "" {
		c.Generation.Host = "http://127.0.0.1:11434"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "phi3:mini"
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 120
	}
	if c.Ask.AbstainThreshold == 0 {
		c.Ask.AbstainThreshold = 0.35
	}
	if c.Ask.TopK <= 0 {
		c.Ask.TopK = 5
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24 * 7
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 512
	}
	if c.Ingest.CSVPath == "" {
		c.Ingest.CSVPath = "data/sample.csv"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Embedding.Backend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.backend must be \"ollama\" or \"openai\", got %q", c.Embedding.Backend)
	}
	if c.Embedding.Backend == "openai" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required for the openai backend")
	}
	switch c.Milvus.Index {
	case "hnsw", "ivf_flat":
	default:
		return fmt.Errorf("milvus.index must be \"hnsw\" or \"ivf_flat\", got %q", c.Milvus.Index)
	}
	switch c.Milvus.Metric {
	case "ip", "cosine", "l2":
	default:
		return fmt.Errorf("milvus.metric must be \"ip\", \"cosine\" or \"l2\", got %q", c.Milvus.Metric)
	}
	if c.Ask.AbstainThreshold < 0 {
		return fmt.Errorf("ask.abstain_threshold must be non-negative, got %v", c.Ask.AbstainThreshold)
	}
	return nil
}

// isE5 reports whether the model belongs to the e5 family, which was
// trained with "query: "/"passage: " framing.
func isE5(model string) bool {
	return strings.Contains(strings.ToLower(model), "e5")
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

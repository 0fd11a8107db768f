// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.evapo/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, chat model, embedder model
//   - Retrieval: gate switch, chunking, top-K, index location
//   - Agent: tool-call round budget, model timeout
//   - Serve: address, CORS, conversation log path
//
// Validation is fail-fast: Load returns an error before any component is
// wired with a bad value. Sentinel errors support errors.Is checks.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the chat model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunking indicates chunk size/overlap are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid top-K")

	// ErrInvalidToolRounds indicates the tool-call round budget is out of range.
	ErrInvalidToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidIndexPath indicates the index path is empty.
	ErrInvalidIndexPath = errors.New("invalid index path")
)

// Supported AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Default values shared with validation bounds.
const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1200

	// DefaultChunkOverlap is the character overlap between consecutive chunks.
	DefaultChunkOverlap = 200

	// DefaultTopK is the default number of retrieved excerpts per query.
	DefaultTopK = 3

	// MaxTopK bounds top-K to keep prompt size predictable.
	MaxTopK = 10

	// DefaultMaxToolRounds bounds the agent's tool-calling loop.
	DefaultMaxToolRounds = 4

	// MaxToolRounds is the absolute ceiling for the tool-calling loop.
	MaxToolRounds = 10
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`             // "gemini" (default) or "ollama"
	ModelName     string `mapstructure:"model_name" json:"model_name"`         // e.g. "gemini-2.5-flash"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"` // must match the persisted index tag
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// Retrieval configuration
	RetrievalEnabled bool     `mapstructure:"retrieval_enabled" json:"retrieval_enabled"`
	ChunkSize        int      `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int      `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK             int      `mapstructure:"top_k" json:"top_k"`
	IndexPath        string   `mapstructure:"index_path" json:"index_path"`
	DocsDir          string   `mapstructure:"docs_dir" json:"docs_dir"`
	GateKeywords     []string `mapstructure:"gate_keywords" json:"gate_keywords"` // extra keywords merged into the built-in sets

	// Agent configuration
	MaxToolRounds      int `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`
	ModelTimeoutSec    int `mapstructure:"model_timeout_sec" json:"model_timeout_sec"`
	RetrievalTimeoutMs int `mapstructure:"retrieval_timeout_ms" json:"retrieval_timeout_ms"`

	// Serve configuration
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	ConvLogPath string   `mapstructure:"conv_log_path" json:"conv_log_path"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Tracing (disabled when endpoint is empty)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures optional OTLP trace export.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // e.g. "localhost:4318"
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// ModelTimeout returns the model-call timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSec) * time.Second
}

// RetrievalTimeout returns the retrieval timeout as a duration.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutMs) * time.Millisecond
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".evapo")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error: defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("retrieval_enabled", true)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("index_path", "data/index.json")
	v.SetDefault("docs_dir", "docs")

	v.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	v.SetDefault("model_timeout_sec", 60)
	v.SetDefault("retrieval_timeout_ms", 5000)

	v.SetDefault("addr", "localhost:8080")
	v.SetDefault("cors_origins", []string{"http://localhost:4200"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("conv_log_path", "data/conversations.db")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("tracing.service_name", "evapo")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables.
// EVAPO_ prefix for everything; GEMINI_API_KEY is consumed by the provider
// plugin directly and never stored in Config.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("EVAPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate performs fail-fast validation of the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedderModel)
	}

	if c.ChunkSize < 100 || c.ChunkSize > 20000 {
		return fmt.Errorf("%w: chunk_size %d not in [100, 20000]", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidTopK, c.TopK, MaxTopK)
	}
	if c.MaxToolRounds < 1 || c.MaxToolRounds > MaxToolRounds {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidToolRounds, c.MaxToolRounds, MaxToolRounds)
	}

	if c.ModelTimeoutSec < 1 || c.ModelTimeoutSec > 600 {
		return fmt.Errorf("%w: model_timeout_sec %d not in [1, 600]", ErrInvalidTimeout, c.ModelTimeoutSec)
	}
	if c.RetrievalTimeoutMs < 100 || c.RetrievalTimeoutMs > 60000 {
		return fmt.Errorf("%w: retrieval_timeout_ms %d not in [100, 60000]", ErrInvalidTimeout, c.RetrievalTimeoutMs)
	}

	if c.RetrievalEnabled && strings.TrimSpace(c.IndexPath) == "" {
		return fmt.Errorf("%w: index_path required when retrieval is enabled", ErrInvalidIndexPath)
	}

	return nil
}

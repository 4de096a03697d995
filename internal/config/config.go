package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "configs/gloombot.yaml"

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Bot       BotConfig       `mapstructure:"bot"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// LLMConfig selects the completion provider used to answer questions.
type LLMConfig struct {
	Provider     string  `mapstructure:"provider"`
	Model        string  `mapstructure:"model"`
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Temperature  float64 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	MaxRetries   int     `mapstructure:"max_retries"`
}

// EmbeddingConfig selects the model that turns chunk text into vectors.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// VectorConfig selects and locates the collection store.
type VectorConfig struct {
	Backend        string          `mapstructure:"backend"`
	Path           string          `mapstructure:"path"`
	Collection     string          `mapstructure:"collection"`
	Dimension      int             `mapstructure:"dimension"`
	TopK           int             `mapstructure:"top_k"`
	Qdrant         QdrantConfig    `mapstructure:"qdrant"`
	QueryEmbedding EmbeddingConfig `mapstructure:"query_embedding"`
}

type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

type BotConfig struct {
	Token          string        `mapstructure:"token"`
	GuildID        string        `mapstructure:"guild_id"`
	HealthAddr     string        `mapstructure:"health_addr"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host       string `mapstructure:"host"`
	Namespace  string `mapstructure:"namespace"`
	TaskQueue  string `mapstructure:"task_queue"`
	HealthAddr string `mapstructure:"health_addr"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Vector store backends.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// QueryEmbeddingResolved returns the embedding settings the collection uses
// for query text. Unset fields fall back to the ingestion embedding.
func (c *Config) QueryEmbeddingResolved() EmbeddingConfig {
	resolved := c.Embedding
	q := c.Vector.QueryEmbedding
	if q.Provider != "" {
		resolved.Provider = q.Provider
	}
	if q.Model != "" {
		resolved.Model = q.Model
	}
	if q.APIKey != "" {
		resolved.APIKey = q.APIKey
	}
	if q.BaseURL != "" {
		resolved.BaseURL = q.BaseURL
	}
	return resolved
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxRetries < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_retries %d is negative", c.LLM.MaxRetries))
	}

	switch c.Vector.Backend {
	case "", BackendLocal, BackendMemory:
	case BackendQdrant:
		if c.Vector.Dimension <= 0 {
			warnings = append(warnings, "vector backend 'qdrant' needs a positive dimension")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s'", c.Vector.Backend))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("telemetry sample_rate %.2f is outside [0, 1]", c.Telemetry.SampleRate))
	}

	if c.Bot.CommandTimeout < 0 {
		warnings = append(warnings, fmt.Sprintf("bot command_timeout %s is negative", c.Bot.CommandTimeout))
	}

	return warnings
}

// Load reads configuration from an optional YAML file, the .env file and the
// environment. Variables use the GLOOMBOT_ prefix with dots replaced by
// underscores; DISCORD_BOT_TOKEN and OPENAI_API_KEY are also honoured.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GLOOMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("bot.token", "GLOOMBOT_BOT_TOKEN", "GLOOMBOT_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")
	_ = v.BindEnv("llm.api_key", "GLOOMBOT_LLM_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !(path == DefaultPath && errors.Is(err, fs.ErrNotExist)) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// setDefaults registers every key so that environment overrides reach
// Unmarshal even when the config file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.system_prompt", "")

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")

	v.SetDefault("vector.backend", BackendLocal)
	v.SetDefault("vector.path", "./chroma")
	v.SetDefault("vector.collection", "pdf_knowledge_base")
	v.SetDefault("vector.dimension", 384)
	v.SetDefault("vector.top_k", 4)
	v.SetDefault("vector.qdrant.host", "localhost")
	v.SetDefault("vector.qdrant.port", 6334)
	v.SetDefault("vector.qdrant.api_key", "")
	v.SetDefault("vector.qdrant.use_tls", false)
	for _, key := range []string{"provider", "model", "api_key", "base_url"} {
		v.SetDefault("vector.query_embedding."+key, "")
	}

	v.SetDefault("bot.token", "")
	v.SetDefault("bot.guild_id", "")
	v.SetDefault("bot.health_addr", ":8080")
	v.SetDefault("bot.command_timeout", time.Duration(0))

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "gloombot-ingest")
	v.SetDefault("temporal.health_addr", ":8081")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

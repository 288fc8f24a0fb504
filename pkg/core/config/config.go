// Package config loads service settings from config.yaml, .env and
// FUNDEXTRACT_* environment variables, and provider routing from models.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/logging"
	"fund_extractor/pkg/core/parser"
	"fund_extractor/pkg/core/store"
)

// EnvPrefix prefixes every environment override, e.g. FUNDEXTRACT_SERVER_ADDRESS.
const EnvPrefix = "FUNDEXTRACT"

type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Log     logging.Config `mapstructure:"log"`
	LLM     LLMConfig      `mapstructure:"llm"`
	Parser  parser.Config  `mapstructure:"parser"`
	Store   store.Config   `mapstructure:"store"`
	Prompts PromptsConfig  `mapstructure:"prompts"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	UploadDir       string        `mapstructure:"upload_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxUploadBytes bounds the multipart body; 0 leaves it unbounded.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type LLMConfig struct {
	ModelsFile        string        `mapstructure:"models_file"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
}

// Limits converts the call bounds for agent.NewManager.
func (c LLMConfig) Limits() agent.Limits {
	return agent.Limits{RequestsPerMinute: c.RequestsPerMinute, Burst: c.Burst, Timeout: c.Timeout}
}

type PromptsConfig struct {
	// Dir overrides embedded prompts when set; it must contain prompts/.
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("llm.models_file", "config/models.yaml")
	v.SetDefault("llm.timeout", 0)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("parser.salvage", false)
	v.SetDefault("store.driver", store.DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "data/results.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_key", store.DefaultRedisKey)
	v.SetDefault("store.apply_filters", false)
	v.SetDefault("prompts.dir", "")
}

// Load reads path, or config.yaml from ./config or the working directory
// when path is empty. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	// .env is optional; it typically carries the provider API keys
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return fmt.Errorf("server.address is required")
	}
	if strings.TrimSpace(c.Server.UploadDir) == "" {
		return fmt.Errorf("server.upload_dir is required")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout cannot be negative")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute cannot be negative")
	}
	return nil
}

// LoadModels reads the provider routing file. A missing file yields
// agent.DefaultConfig.
func LoadModels(path string) (agent.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return agent.DefaultConfig(), nil
	}
	if err != nil {
		return agent.Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg agent.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return agent.Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.ActiveProvider == "" {
		cfg.ActiveProvider = agent.DefaultConfig().ActiveProvider
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = agent.DefaultConfig().Providers
	}
	return cfg, nil
}

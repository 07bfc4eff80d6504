package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBDSN         string `mapstructure:"DB_DSN"`
	JWTSecret     string `mapstructure:"JWT_SECRET"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// AI provider
	AIProvider        string `mapstructure:"AI_PROVIDER"`
	OllamaBaseURL     string `mapstructure:"OLLAMA_BASE_URL"`
	OllamaModel       string `mapstructure:"OLLAMA_MODEL"`
	OpenRouterBaseURL string `mapstructure:"OPENROUTER_BASE_URL"`
	OpenRouterAPIKey  string `mapstructure:"OPENROUTER_API_KEY"`
	OpenRouterModel   string `mapstructure:"OPENROUTER_MODEL"`
	OpenRouterSiteURL string `mapstructure:"OPENROUTER_SITE_URL"`
	OpenRouterAppName string `mapstructure:"OPENROUTER_APP_NAME"`
	OpenAIAPIKey      string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel       string `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL     string `mapstructure:"OPENAI_BASE_URL"`

	// chat pipeline
	SystemPrompt       string        `mapstructure:"CHAT_SYSTEM_PROMPT"`
	Temperature        float64       `mapstructure:"CHAT_TEMPERATURE"`
	MaxOutputTokens    int           `mapstructure:"CHAT_MAX_OUTPUT_TOKENS"`
	RequestTimeout     time.Duration `mapstructure:"CHAT_REQUEST_TIMEOUT"`
	HeartbeatInterval  time.Duration `mapstructure:"CHAT_HEARTBEAT_INTERVAL"`
	PersistPartial     bool          `mapstructure:"CHAT_PERSIST_PARTIAL"`
	VerifySessionOwner bool          `mapstructure:"CHAT_VERIFY_SESSION_OWNER"`

	// rabbitMQ
	RabbitURL         string `mapstructure:"RABBIT_URL"`
	RabbitQueue       string `mapstructure:"RABBIT_QUEUE"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "INFO")

	v.SetDefault("DB_DSN", "app:apppass@tcp(127.0.0.1:3306)/streamchat?charset=utf8mb4&parseTime=true&loc=Local")
	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AI_PROVIDER", "ollama")
	v.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3:latest")
	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("OPENROUTER_API_KEY", "")
	v.SetDefault("OPENROUTER_MODEL", "openrouter/auto")
	v.SetDefault("OPENROUTER_SITE_URL", "")
	v.SetDefault("OPENROUTER_APP_NAME", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_BASE_URL", "")

	v.SetDefault("CHAT_SYSTEM_PROMPT", "You are a helpful and friendly AI assistant.")
	v.SetDefault("CHAT_TEMPERATURE", 0.7)
	v.SetDefault("CHAT_MAX_OUTPUT_TOKENS", 1000)
	v.SetDefault("CHAT_REQUEST_TIMEOUT", "30s")
	v.SetDefault("CHAT_HEARTBEAT_INTERVAL", "15s")
	v.SetDefault("CHAT_PERSIST_PARTIAL", false)
	v.SetDefault("CHAT_VERIFY_SESSION_OWNER", true)

	v.SetDefault("RABBIT_URL", "")
	v.SetDefault("RABBIT_QUEUE", "chat_persist")
	v.SetDefault("WORKER_CONCURRENCY", 2)
}

// Load reads defaults, then an optional .env file, then the environment.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate clamps soft limits and rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 1 {
		c.Temperature = 1
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("config: CHAT_MAX_OUTPUT_TOKENS must be positive, got %d", c.MaxOutputTokens)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: CHAT_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 2
	}
	if c.WorkerConcurrency > 50 {
		c.WorkerConcurrency = 50
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return errors.New("config: DB_DSN is required")
	}
	return nil
}

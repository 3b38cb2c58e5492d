package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Port        string
	LogLevel    slog.Level

	Storage StorageConfig
	// Empty disables Redis; sessions and drafts stay in process memory.
	RedisURL string

	Auth    AuthConfig
	LLM     LLMConfig
	Kafka   KafkaConfig
	Casdoor CasdoorConfig
}

type StorageConfig struct {
	// "file" or "postgres"
	Driver      string
	DataFile    string
	DatabaseURL string
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
}

type LLMConfig struct {
	OpenAIKey     string
	GeminiKey     string
	PerplexityKey string

	OpenAIModel       string
	GeminiModel       string
	PerplexityModel   string
	PerplexityBaseURL string

	// Providers are tried in this order.
	ProviderOrder []string
	Timeout       time.Duration

	// .env file that API key changes are written back to.
	EnvFile string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

func (c CasdoorConfig) Enabled() bool {
	return c.Endpoint != "" && c.ClientID != ""
}

// LoadConfig reads .env, the optional config.yaml and the environment, in
// increasing order of precedence.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.Set("env_file", envFile)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("storage_driver", "file")
	v.SetDefault("data_file", "users_data.json")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "12h")
	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_password", "admin123")

	v.SetDefault("openai_api_key", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("google_api_key", "")
	v.SetDefault("perplexity_api_key", "")
	v.SetDefault("openai_model", "gpt-3.5-turbo")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("perplexity_model", "sonar")
	v.SetDefault("perplexity_base_url", "https://api.perplexity.ai")
	v.SetDefault("llm_provider_order", "openai,gemini,perplexity")
	v.SetDefault("llm_timeout", "60s")

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic_prefix", "english-practice")

	v.SetDefault("casdoor_endpoint", "")
	v.SetDefault("casdoor_client_id", "")
	v.SetDefault("casdoor_client_secret", "")
	v.SetDefault("casdoor_cert", "")
	v.SetDefault("casdoor_organization", "")
	v.SetDefault("casdoor_application", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("environment"),
		Port:        v.GetString("port"),
		LogLevel:    level,
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("storage_driver")),
			DataFile:    v.GetString("data_file"),
			DatabaseURL: v.GetString("database_url"),
		},
		RedisURL: v.GetString("redis_url"),
		Auth: AuthConfig{
			JWTSecret:     v.GetString("jwt_secret"),
			TokenTTL:      v.GetDuration("token_ttl"),
			AdminUsername: v.GetString("admin_username"),
			AdminPassword: v.GetString("admin_password"),
		},
		LLM: LLMConfig{
			OpenAIKey:         v.GetString("openai_api_key"),
			GeminiKey:         firstNonEmpty(v.GetString("google_api_key"), v.GetString("gemini_api_key")),
			PerplexityKey:     v.GetString("perplexity_api_key"),
			OpenAIModel:       v.GetString("openai_model"),
			GeminiModel:       v.GetString("gemini_model"),
			PerplexityModel:   v.GetString("perplexity_model"),
			PerplexityBaseURL: v.GetString("perplexity_base_url"),
			ProviderOrder:     splitList(v.GetString("llm_provider_order")),
			Timeout:           v.GetDuration("llm_timeout"),
			EnvFile:           v.GetString("env_file"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka_brokers")),
			Topic:   v.GetString("kafka_topic_prefix"),
		},
		Casdoor: CasdoorConfig{
			Endpoint:     v.GetString("casdoor_endpoint"),
			ClientID:     v.GetString("casdoor_client_id"),
			ClientSecret: v.GetString("casdoor_client_secret"),
			Cert:         v.GetString("casdoor_cert"),
			Organization: v.GetString("casdoor_organization"),
			Application:  v.GetString("casdoor_application"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file":
		if c.Storage.DataFile == "" {
			return errors.New("DATA_FILE is required for the file storage driver")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string
	LogFile  string

	CORSAllowOrigins string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	NATSSubject    string

	AuthBaseURL       string
	AuthCookieName    string
	AuthAdminRole     string
	SessionCacheTTL   time.Duration
	SessionCacheSize  int
	JWTSecret         string
	ChallengeCacheTTL time.Duration

	RunnerEngine      string
	RunnerTimeout     time.Duration
	RunnerMaxLogLines int
	RunnerMaxLineSize int
	DockerHost        string
	DockerImage       string
	CodeRunMemoryMB   int
	CodeRunCPUShares  int

	AIProvider     string
	AIModel        string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	AIModeration   bool
	AssistRateMax  int
	AssistRateSpan time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PLAYGROUND")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Script Playground API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("nats.subject", "playground")
	v.SetDefault("auth.cookie_name", "better-auth.session_token")
	v.SetDefault("auth.admin_role", "ADMIN")
	v.SetDefault("auth.cache_ttl", "20s")
	v.SetDefault("auth.cache_size", 500)
	v.SetDefault("cache.challenges_ttl", "5m")
	v.SetDefault("runner.engine", "goja")
	v.SetDefault("runner.timeout", "2s")
	v.SetDefault("runner.max_log_lines", 500)
	v.SetDefault("runner.max_line_bytes", 4096)
	v.SetDefault("runner.docker_image", "node:20-alpine")
	v.SetDefault("code_run_memory_mb", 128)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.moderation", true)
	v.SetDefault("assist.rate_max", 10)
	v.SetDefault("assist.rate_window", "1m")

	sessionTTL, err := parseDuration(v, "auth.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	challengeTTL, err := parseDuration(v, "cache.challenges_ttl")
	if err != nil {
		return Config{}, err
	}
	runnerTimeout, err := parseDuration(v, "runner.timeout")
	if err != nil {
		return Config{}, err
	}
	assistWindow, err := parseDuration(v, "assist.rate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		LogLevel:          strings.ToLower(v.GetString("log.level")),
		LogFile:           v.GetString("log.file"),
		CORSAllowOrigins:  v.GetString("cors.allow_origins"),
		DatabaseDriver:    strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubject:       v.GetString("nats.subject"),
		AuthBaseURL:       strings.TrimRight(v.GetString("auth.base_url"), "/"),
		AuthCookieName:    v.GetString("auth.cookie_name"),
		AuthAdminRole:     v.GetString("auth.admin_role"),
		SessionCacheTTL:   sessionTTL,
		SessionCacheSize:  v.GetInt("auth.cache_size"),
		JWTSecret:         v.GetString("jwt.secret"),
		ChallengeCacheTTL: challengeTTL,
		RunnerEngine:      strings.ToLower(v.GetString("runner.engine")),
		RunnerTimeout:     runnerTimeout,
		RunnerMaxLogLines: v.GetInt("runner.max_log_lines"),
		RunnerMaxLineSize: v.GetInt("runner.max_line_bytes"),
		DockerHost:        v.GetString("docker_host"),
		DockerImage:       v.GetString("runner.docker_image"),
		CodeRunMemoryMB:   v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:  v.GetInt("code_run_cpu_shares"),
		AIProvider:        strings.ToLower(v.GetString("ai.provider")),
		AIModel:           v.GetString("ai.model"),
		OpenAIAPIKey:      v.GetString("openai_api_key"),
		OpenAIBaseURL:     v.GetString("openai_base_url"),
		AIModeration:      v.GetBool("ai.moderation"),
		AssistRateMax:     v.GetInt("assist.rate_max"),
		AssistRateSpan:    assistWindow,
	}

	switch cfg.DatabaseDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for postgres")
		}
	case "sqlite":
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = "file:playground.db?cache=shared"
		}
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.AuthBaseURL == "" && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("auth base url or jwt secret must be provided")
	}

	switch cfg.RunnerEngine {
	case "goja", "docker":
	default:
		return Config{}, fmt.Errorf("unsupported runner engine %q", cfg.RunnerEngine)
	}

	if cfg.SessionCacheSize <= 0 {
		cfg.SessionCacheSize = 500
	}
	if cfg.RunnerMaxLogLines <= 0 {
		cfg.RunnerMaxLogLines = 500
	}
	if cfg.RunnerMaxLineSize <= 0 {
		cfg.RunnerMaxLineSize = 4096
	}
	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 128
	}
	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

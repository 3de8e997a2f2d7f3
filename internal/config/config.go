package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret    string `mapstructure:"JWT_SECRET"`
	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`

	AIProvider        string        `mapstructure:"AI_PROVIDER"`
	AIEndpoint        string        `mapstructure:"AI_ENDPOINT"`
	AIAPIKey          string        `mapstructure:"AI_API_KEY"`
	AIModel           string        `mapstructure:"AI_MODEL"`
	AITimeout         time.Duration `mapstructure:"AI_TIMEOUT"`
	AIFallbackEnabled bool          `mapstructure:"AI_FALLBACK_ENABLED"`

	PushEndpoint string        `mapstructure:"PUSH_ENDPOINT"`
	PushAPIKey   string        `mapstructure:"PUSH_API_KEY"`
	PushTimeout  time.Duration `mapstructure:"PUSH_TIMEOUT"`

	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AI_PROVIDER", "openai")
	v.SetDefault("AI_TIMEOUT", "20s")
	v.SetDefault("AI_FALLBACK_ENABLED", true)
	v.SetDefault("PUSH_TIMEOUT", "10s")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AI_PROVIDER")
	v.BindEnv("AI_ENDPOINT")
	v.BindEnv("AI_API_KEY")
	v.BindEnv("AI_MODEL")
	v.BindEnv("AI_TIMEOUT")
	v.BindEnv("AI_FALLBACK_ENABLED")
	v.BindEnv("PUSH_ENDPOINT")
	v.BindEnv("PUSH_API_KEY")
	v.BindEnv("PUSH_TIMEOUT")
	v.BindEnv("SWEEP_INTERVAL")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REQUEST_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.IsDev() && cfg.JWTSecret == "" && cfg.AuthIssuer == "" {
		return nil, fmt.Errorf("JWT_SECRET or AUTH_ISSUER is required outside development")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RemoteScoringEnabled reports whether an external AI scoring endpoint is
// configured. Without one the rule-based engine handles every assessment.
func (c *Config) RemoteScoringEnabled() bool {
	return c.AIEndpoint != "" && c.AIAPIKey != ""
}

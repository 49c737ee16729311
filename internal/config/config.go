package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "KINDRED_"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	AWS       AWSConfig       `yaml:"aws" envPrefix:"AWS_"`
	APNs      APNsConfig      `yaml:"apns" envPrefix:"APNS_"`
	JWT       JWTConfig       `yaml:"jwt" envPrefix:"JWT_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Engine    EngineConfig    `yaml:"engine" envPrefix:"ENGINE_"`
	RateLimit RateLimitConfig `yaml:"ratelimit" envPrefix:"RATELIMIT_"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port" env:"PORT"`
	Host string `yaml:"host" env:"HOST"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "memory"
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"DBNAME"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
	Migrate  bool   `yaml:"migrate" env:"MIGRATE"`
}

// RedisConfig enables cross-instance event fan-out when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// AWSConfig holds AWS configuration for transcript export
type AWSConfig struct {
	Region    string `yaml:"region" env:"REGION"`
	S3Bucket  string `yaml:"s3_bucket" env:"S3_BUCKET"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
}

// APNsConfig enables offline push when KeyPath is set
type APNsConfig struct {
	KeyPath    string `yaml:"key_path" env:"KEY_PATH"`
	KeyID      string `yaml:"key_id" env:"KEY_ID"`
	TeamID     string `yaml:"team_id" env:"TEAM_ID"`
	Topic      string `yaml:"topic" env:"TOPIC"`
	Production bool   `yaml:"production" env:"PRODUCTION"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret" env:"SECRET"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// EngineConfig holds the pairing and session tunables
type EngineConfig struct {
	InviteTTL         time.Duration `yaml:"invite_ttl" env:"INVITE_TTL"`
	MinimumEngagement time.Duration `yaml:"minimum_engagement" env:"MINIMUM_ENGAGEMENT"`
	PenaltyDuration   time.Duration `yaml:"penalty_duration" env:"PENALTY_DURATION"`
	SweepInterval     time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	MaxMatches        int           `yaml:"max_matches" env:"MAX_MATCHES"`
	MaxMessageLength  int           `yaml:"max_message_length" env:"MAX_MESSAGE_LENGTH"`
	MaxPromptLength   int           `yaml:"max_prompt_length" env:"MAX_PROMPT_LENGTH"`
	// SeedFile optionally lists user profiles loaded at startup
	SeedFile string `yaml:"seed_file" env:"SEED_FILE"`
}

// RateLimitConfig holds the per-user limit on write endpoints
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// Load reads configuration from a YAML file, applies environment overrides
// and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Engine.InviteTTL == 0 {
		c.Engine.InviteTTL = 2 * time.Minute
	}
	if c.Engine.MinimumEngagement == 0 {
		c.Engine.MinimumEngagement = 600 * time.Second
	}
	if c.Engine.PenaltyDuration == 0 {
		c.Engine.PenaltyDuration = 24 * time.Hour
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = time.Minute
	}
	if c.Engine.MaxMatches == 0 {
		c.Engine.MaxMatches = 5
	}
	if c.Engine.MaxMessageLength == 0 {
		c.Engine.MaxMessageLength = 2000
	}
	if c.Engine.MaxPromptLength == 0 {
		c.Engine.MaxPromptLength = 500
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 2
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	for name, d := range map[string]time.Duration{
		"engine.invite_ttl":         c.Engine.InviteTTL,
		"engine.minimum_engagement": c.Engine.MinimumEngagement,
		"engine.penalty_duration":   c.Engine.PenaltyDuration,
		"engine.sweep_interval":     c.Engine.SweepInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Engine.MaxMatches < 0 || c.Engine.MaxMessageLength < 0 || c.Engine.MaxPromptLength < 0 {
		return errors.New("engine limits must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("ratelimit values must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// TranscriptsEnabled reports whether an export bucket is configured
func (c *AWSConfig) TranscriptsEnabled() bool {
	return c.S3Bucket != ""
}

// PushEnabled reports whether APNs credentials are configured
func (c *APNsConfig) PushEnabled() bool {
	return c.KeyPath != ""
}

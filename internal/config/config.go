// Package config defines all configuration for the trading control server.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via TRADE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"tradecore/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	EventLog  EventLogConfig  `mapstructure:"event_log"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimit      float64  `mapstructure:"rate_limit"`       // order submissions per second per user
	RateLimitBurst int      `mapstructure:"rate_limit_burst"` // burst allowance
}

// AuthConfig holds the token secret and the seeded users. The secret must
// come from TRADE_JWT_SECRET in production.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Users     []UserConfig  `mapstructure:"users"`
}

// UserConfig seeds one user. Either password_hash (bcrypt) or password may
// be given; plaintext is hashed at startup.
type UserConfig struct {
	UserID       string `mapstructure:"user_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// RiskConfig sets the starting risk limits. All values are absolute
// notionals; the risk engine rejects negative updates at runtime, and
// Validate applies the same rule here.
type RiskConfig struct {
	MaxPositionSize  string `mapstructure:"max_position_size"`
	MaxDailyVolume   string `mapstructure:"max_daily_volume"`
	MaxNetExposure   string `mapstructure:"max_net_exposure"`
	MaxGrossExposure string `mapstructure:"max_gross_exposure"`
}

// ExecutionConfig tunes the worker pool, the retry policy, the circuit
// breaker, and the downstream executor.
//
// Mode selects the executor: "sim" fills in-process, "rest" posts to an
// HTTP order gateway at BaseURL.
type ExecutionConfig struct {
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`

	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	RetryMin       time.Duration `mapstructure:"retry_min"`
	RetryMax       time.Duration `mapstructure:"retry_max"`

	BreakerThreshold    uint32        `mapstructure:"breaker_threshold"`
	BreakerOpenDuration time.Duration `mapstructure:"breaker_open_duration"`

	SimMinLatency  time.Duration `mapstructure:"sim_min_latency"`
	SimMaxLatency  time.Duration `mapstructure:"sim_max_latency"`
	SimFailureRate float64       `mapstructure:"sim_failure_rate"`
	SimRejectRate  float64       `mapstructure:"sim_reject_rate"`
}

// EventLogConfig bounds the in-memory audit log and optionally mirrors it to
// a JSONL archive file.
type EventLogConfig struct {
	MaxEvents   int    `mapstructure:"max_events"`
	ArchivePath string `mapstructure:"archive_path"`
}

// Limits parses the configured limit strings into decimals.
func (r RiskConfig) Limits() (types.RiskLimits, error) {
	var (
		limits types.RiskLimits
		err    error
	)
	for _, field := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"max_position_size", r.MaxPositionSize, &limits.MaxPositionSize},
		{"max_daily_volume", r.MaxDailyVolume, &limits.MaxDailyVolume},
		{"max_net_exposure", r.MaxNetExposure, &limits.MaxNetExposure},
		{"max_gross_exposure", r.MaxGrossExposure, &limits.MaxGrossExposure},
	} {
		if *field.dst, err = decimal.NewFromString(field.value); err != nil {
			return types.RiskLimits{}, fmt.Errorf("risk.%s: %w", field.name, err)
		}
	}
	return limits, nil
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: TRADE_JWT_SECRET, TRADE_EXECUTION_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if secret := os.Getenv("TRADE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if key := os.Getenv("TRADE_EXECUTION_API_KEY"); key != "" {
		cfg.Execution.APIKey = key
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set TRADE_JWT_SECRET)")
	}
	if len(c.Auth.Users) == 0 {
		return fmt.Errorf("auth.users must seed at least one user")
	}
	switch c.Execution.Mode {
	case "", "sim":
	case "rest":
		if c.Execution.BaseURL == "" {
			return fmt.Errorf("execution.base_url is required when execution.mode is rest")
		}
	default:
		return fmt.Errorf("execution.mode must be one of: sim, rest")
	}
	if c.Execution.SimFailureRate < 0 || c.Execution.SimFailureRate > 1 {
		return fmt.Errorf("execution.sim_failure_rate must be in [0, 1]")
	}
	if c.Execution.SimRejectRate < 0 || c.Execution.SimRejectRate > 1 {
		return fmt.Errorf("execution.sim_reject_rate must be in [0, 1]")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"risk.max_position_size", c.Risk.MaxPositionSize},
		{"risk.max_daily_volume", c.Risk.MaxDailyVolume},
		{"risk.max_net_exposure", c.Risk.MaxNetExposure},
		{"risk.max_gross_exposure", c.Risk.MaxGrossExposure},
	} {
		if field.value == "" {
			return fmt.Errorf("%s is required", field.name)
		}
		if strings.HasPrefix(field.value, "-") {
			return fmt.Errorf("%s must be non-negative", field.name)
		}
	}
	if c.EventLog.MaxEvents < 0 {
		return fmt.Errorf("event_log.max_events must be non-negative")
	}
	return nil
}

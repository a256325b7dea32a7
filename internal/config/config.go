package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/weddingdesk/api/internal/admission"
	"github.com/weddingdesk/api/internal/ratelimit"
)

// Rate limit ledger backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Logging   LoggingConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Signup    SignupConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// TierConfig is the budget of one admission tier
type TierConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

// RateLimitConfig holds the admission gate and ledger configuration
type RateLimitConfig struct {
	Backend         string
	IP              TierConfig
	Email           TierConfig
	Global          TierConfig
	LedgerTimeout   time.Duration
	JanitorInterval time.Duration
	PolicyFile      string
}

// RedisConfig holds the redis ledger connection
type RedisConfig struct {
	Addrs     []string
	Password  string
	DB        int
	KeyPrefix string
}

// SignupConfig holds signup endpoint configuration
type SignupConfig struct {
	ProvisionTimeout time.Duration
	BcryptCost       int
	MaxBodyBytes     int64
	TrustedIPHeader  string
}

// policyFile is the YAML overlay for the admission policy
type policyFile struct {
	Backend       string        `yaml:"backend"`
	LedgerTimeout time.Duration `yaml:"ledger_timeout"`
	Tiers         struct {
		IP     TierConfig `yaml:"ip"`
		Email  TierConfig `yaml:"email"`
		Global TierConfig `yaml:"global"`
	} `yaml:"tiers"`
}

// Load reads .env (if present), then the environment, then the optional
// policy file named by RATE_LIMIT_POLICY_FILE, and validates the result
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := FromEnv()
	if cfg.RateLimit.PolicyFile != "" {
		if err := cfg.ApplyPolicyFile(cfg.RateLimit.PolicyFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads configuration from environment variables
func FromEnv() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "weddingdesk"),
			Password:        getEnv("DB_PASSWORD", "weddingdesk"),
			Name:            getEnv("DB_NAME", "weddingdesk"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"authorization", "x-client-info", "apikey", "content-type"}),
		},
		RateLimit: RateLimitConfig{
			Backend: getEnv("RATE_LIMIT_BACKEND", BackendPostgres),
			IP: TierConfig{
				MaxAttempts: getEnvInt("RATE_LIMIT_IP_MAX", 5),
				Window:      getEnvDuration("RATE_LIMIT_IP_WINDOW", 60*time.Minute),
			},
			Email: TierConfig{
				MaxAttempts: getEnvInt("RATE_LIMIT_EMAIL_MAX", 3),
				Window:      getEnvDuration("RATE_LIMIT_EMAIL_WINDOW", 60*time.Minute),
			},
			Global: TierConfig{
				MaxAttempts: getEnvInt("RATE_LIMIT_GLOBAL_MAX", 100),
				Window:      getEnvDuration("RATE_LIMIT_GLOBAL_WINDOW", time.Minute),
			},
			LedgerTimeout:   getEnvDuration("RATE_LIMIT_LEDGER_TIMEOUT", admission.DefaultLedgerTimeout),
			JanitorInterval: getEnvDuration("RATE_LIMIT_JANITOR_INTERVAL", 5*time.Minute),
			PolicyFile:      getEnv("RATE_LIMIT_POLICY_FILE", ""),
		},
		Redis: RedisConfig{
			Addrs:     getEnvSlice("REDIS_ADDRS", []string{"localhost:6379"}),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "signup:rl:"),
		},
		Signup: SignupConfig{
			ProvisionTimeout: getEnvDuration("SIGNUP_PROVISION_TIMEOUT", 10*time.Second),
			BcryptCost:       getEnvInt("SIGNUP_BCRYPT_COST", 10),
			MaxBodyBytes:     int64(getEnvInt("SIGNUP_MAX_BODY_BYTES", 64<<10)),
			TrustedIPHeader:  getEnv("TRUSTED_IP_HEADER", "CF-Connecting-IP"),
		},
	}
}

// ApplyPolicyFile overlays the non-zero values of a YAML policy file
func (c *Config) ApplyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rate limit policy %s: %w", path, err)
	}

	var policy policyFile
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("parse rate limit policy %s: %w", path, err)
	}

	if policy.Backend != "" {
		c.RateLimit.Backend = policy.Backend
	}
	if policy.LedgerTimeout > 0 {
		c.RateLimit.LedgerTimeout = policy.LedgerTimeout
	}
	overlayTier(&c.RateLimit.IP, policy.Tiers.IP)
	overlayTier(&c.RateLimit.Email, policy.Tiers.Email)
	overlayTier(&c.RateLimit.Global, policy.Tiers.Global)
	return nil
}

func overlayTier(dst *TierConfig, src TierConfig) {
	if src.MaxAttempts != 0 {
		dst.MaxAttempts = src.MaxAttempts
	}
	if src.Window != 0 {
		dst.Window = src.Window
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.RateLimit.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be one of memory, postgres, redis; got %q", c.RateLimit.Backend))
	}

	for _, tier := range c.Tiers() {
		if err := tier.Limit.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", tier.Type, err))
		}
	}

	if c.RateLimit.LedgerTimeout <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_LEDGER_TIMEOUT must be positive"))
	}
	if c.Signup.ProvisionTimeout <= 0 {
		errs = append(errs, errors.New("SIGNUP_PROVISION_TIMEOUT must be positive"))
	}
	if c.Signup.BcryptCost < 4 || c.Signup.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("SIGNUP_BCRYPT_COST must be between 4 and 31, got %d", c.Signup.BcryptCost))
	}
	if c.Signup.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("SIGNUP_MAX_BODY_BYTES must be positive"))
	}
	if c.RateLimit.Backend == BackendRedis && len(c.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("REDIS_ADDRS is required for the redis backend"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Tiers returns the admission tiers in check order
func (c *Config) Tiers() []admission.Tier {
	return []admission.Tier{
		{
			Type:   ratelimit.LimitIP,
			Limit:  ratelimit.Limit{MaxAttempts: c.RateLimit.IP.MaxAttempts, Window: c.RateLimit.IP.Window},
			Reason: admission.ReasonIPRateLimited,
		},
		{
			Type:   ratelimit.LimitEmail,
			Limit:  ratelimit.Limit{MaxAttempts: c.RateLimit.Email.MaxAttempts, Window: c.RateLimit.Email.Window},
			Reason: admission.ReasonEmailRateLimited,
		},
		{
			Type:   ratelimit.LimitGlobal,
			Limit:  ratelimit.Limit{MaxAttempts: c.RateLimit.Global.MaxAttempts, Window: c.RateLimit.Global.Window},
			Reason: admission.ReasonOverloaded,
		},
	}
}

// LongestWindow is the largest tier window; persisted windows older than
// this are dead
func (c *Config) LongestWindow() time.Duration {
	longest := time.Duration(0)
	for _, tier := range c.Tiers() {
		if tier.Limit.Window > longest {
			longest = tier.Limit.Window
		}
	}
	return longest
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

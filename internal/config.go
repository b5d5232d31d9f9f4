package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	// Staff tokens are issued by the identity service; we only verify them.
	StaffTokenSecret string `mapstructure:"staff_token_secret"`
}

// GatewayConfig points at the UPI payment gateway.
type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	APIVersion    string        `mapstructure:"api_version"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

// CheckoutConfig carries the reconciler tuning knobs. Tests shrink the
// durations; production values match the gateway's settlement behaviour.
type CheckoutConfig struct {
	MinAmount string `mapstructure:"min_amount"`
	MaxAmount string `mapstructure:"max_amount"`

	MaxVerificationAttempts int           `mapstructure:"max_verification_attempts"`
	VerificationRetryDelay  time.Duration `mapstructure:"verification_retry_delay"`
	VerificationWindow      time.Duration `mapstructure:"verification_window"`
	ResumeDebounce          time.Duration `mapstructure:"resume_debounce"`

	ReconcilerGrace       time.Duration `mapstructure:"reconciler_grace"`
	ReconcilerInterval    time.Duration `mapstructure:"reconciler_interval"`
	ReconcilerMaxAttempts int           `mapstructure:"reconciler_max_attempts"`

	SessionRetention time.Duration `mapstructure:"session_retention"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultCheckoutConfig returns the production reconciliation budget.
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		MinAmount:               "1",
		MaxAmount:               "100000",
		MaxVerificationAttempts: 4,
		VerificationRetryDelay:  3 * time.Second,
		VerificationWindow:      20 * time.Second,
		ResumeDebounce:          500 * time.Millisecond,
		ReconcilerGrace:         60 * time.Second,
		ReconcilerInterval:      30 * time.Second,
		ReconcilerMaxAttempts:   5,
		SessionRetention:        30 * time.Minute,
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the config purely from environment variables,
// used for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_SOURCE", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			StaffTokenSecret: getEnv("SECURITY_STAFF_TOKEN_SECRET", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnv("GATEWAY_BASE_URL", ""),
			ClientID:      getEnv("GATEWAY_CLIENT_ID", ""),
			ClientSecret:  getEnv("GATEWAY_CLIENT_SECRET", ""),
			APIVersion:    getEnv("GATEWAY_API_VERSION", "2023-08-01"),
			Timeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
			WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		},
		Checkout:      DefaultCheckoutConfig(),
		Observability: ObservabilityConfig{Logging: LoggingConfig{Level: getEnv("LOG_LEVEL", "info"), Format: getEnv("LOG_FORMAT", "json")}},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Checkout.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("checkout config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client_id and client_secret are required")
	}
	return nil
}

func (c *CheckoutConfig) Validate() error {
	if c.MaxVerificationAttempts < 1 {
		return errors.New("max_verification_attempts must be at least 1")
	}
	if c.VerificationWindow <= 0 {
		return errors.New("verification_window must be positive")
	}
	if c.ReconcilerMaxAttempts < 0 {
		return errors.New("reconciler_max_attempts cannot be negative")
	}
	if c.ReconcilerInterval <= 0 {
		return errors.New("reconciler_interval must be positive")
	}
	if c.SessionRetention <= 0 {
		return errors.New("session_retention must be positive")
	}
	return nil
}

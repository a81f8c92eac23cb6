package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Backend names accepted in DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	// HTTP Server
	Port               string        `env:"PORT" envDefault:"8081"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`

	// Extra proxy IPs or CIDRs whose forwarding headers are trusted.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Backend selection
	DataBackend string `env:"DATA_BACKEND" envDefault:"memory"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`

	// SQLite
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/ledger.db"`

	// Redis
	RedisURL string `env:"REDIS_URL"`
	RedisKey string `env:"REDIS_KEY" envDefault:"cloudledger:table"`

	// AMQP; empty URL disables publishing.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"cloudledger"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"mirror_table"`

	// Google Sheets
	GoogleSpreadsheetID      string        `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string        `env:"GOOGLE_SHEET_NAME" envDefault:"記帳"`
	GoogleServiceAccountJSON string        `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string        `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleApplicationCreds   string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	GoogleOAuthClientJSON    string        `env:"GOOGLE_OAUTH_CLIENT_JSON"`
	GoogleOAuthClientFile    string        `env:"GOOGLE_OAUTH_CLIENT_FILE"`
	GoogleOAuthTokenJSON     string        `env:"GOOGLE_OAUTH_TOKEN_JSON"`
	GoogleOAuthTokenFile     string        `env:"GOOGLE_OAUTH_TOKEN_FILE"`
	SheetsCacheTTL           time.Duration `env:"SHEETS_CACHE_TTL" envDefault:"30s"`

	// Worker
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
}

// LoadEnvFile loads .env for local development. A missing file is not an error.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load parses the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.GoogleServiceAccountFile == "" && cfg.GoogleServiceAccountJSON == "" {
		cfg.GoogleServiceAccountFile = cfg.GoogleApplicationCreds
	}
	return cfg, nil
}

func (c *Config) hasGoogleCredentials() bool {
	sa := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
	oauth := (c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != "") &&
		(c.GoogleOAuthTokenJSON != "" || c.GoogleOAuthTokenFile != "")
	return sa || oauth
}

// MirrorEnabled reports whether the sync worker has a Sheets target.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != "" && c.hasGoogleCredentials()
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSheets, BackendSQLite, BackendRedis}
	valid := false
	for _, b := range validBackends {
		if c.DataBackend == b {
			valid = true
			break
		}
	}
	if !valid {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required when using redis backend")
		} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, fmt.Sprintf("invalid REDIS_URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, "Google Spreadsheet ID is required when using sheets backend")
		}
		if !c.hasGoogleCredentials() {
			errs = append(errs, "sheets backend needs a service account (GOOGLE_SERVICE_ACCOUNT_JSON/FILE) or an OAuth client and token")
		}
		for _, f := range []string{c.GoogleServiceAccountFile, c.GoogleOAuthClientFile, c.GoogleOAuthTokenFile} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google credentials file does not exist: %s", f))
			}
		}
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
	}
	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

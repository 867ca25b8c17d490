package app

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultSQLiteDSN opens write transactions with BEGIN IMMEDIATE so
	// concurrent writers wait on busy_timeout instead of failing.
	DefaultSQLiteDSN = "file:accounts.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
)

type Config struct {
	Env       string // Environment (development, production) (default: development)
	Issuer    string // Optional: iss claim of session tokens (default: accounts)
	JWTSecret string // Required: HS256 session signing secret, at least 32 bytes in production

	AppOrigin      string // Optional: public origin of this service, allowed by the CSRF origin check
	FrontendOrigin string // Optional: SPA origin, also the base of reset links (default: http://localhost:5173)

	DatabaseDriver string // Optional: sqlite or postgres (default: sqlite)
	DatabaseDSN    string // Optional: driver DSN (default: ./accounts.db in WAL mode)
	PepperFile     string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired token cleanup interval (default: 1h)

	RateLimits     httpx.RateLimitProfiles
	TrustedProxies []netip.Prefix // Optional: reverse proxies allowed to set X-Forwarded-For (IPs or CIDRs)
}

// LoadConfig reads the environment, after loading .env.local or .env from
// the working directory when present. Real environment variables win.
func LoadConfig() (Config, error) {
	loadEnvFile()

	cfg := Config{
		Env:                  strings.ToLower(getEnvOrDefault("ENV", EnvDevelopment)),
		Issuer:               getEnvOrDefault("ACCOUNTS_ISSUER", "accounts"),
		JWTSecret:            os.Getenv("ACCOUNTS_JWT_SECRET"),
		AppOrigin:            getEnvOrDefault("ACCOUNTS_APP_ORIGIN", "http://localhost:8080"),
		FrontendOrigin:       getEnvOrDefault("ACCOUNTS_FRONTEND_ORIGIN", "http://localhost:5173"),
		DatabaseDriver:       strings.ToLower(getEnvOrDefault("ACCOUNTS_DATABASE_DRIVER", DriverSQLite)),
		DatabaseDSN:          os.Getenv("ACCOUNTS_DATABASE_DSN"),
		PepperFile:           getEnvOrDefault("ACCOUNTS_PEPPER_FILE", "pepper"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		RateLimits:           httpx.ProfilesFromEnv(httpx.DefaultRateLimitProfiles()),
	}

	if cfg.DatabaseDSN == "" && cfg.DatabaseDriver == DriverSQLite {
		cfg.DatabaseDSN = DefaultSQLiteDSN
	}

	proxies, err := httpx.ParseTrustedProxies(os.Getenv("ACCOUNTS_TRUSTED_PROXIES"))
	if err != nil {
		return Config{}, fmt.Errorf("ACCOUNTS_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("ACCOUNTS_JWT_SECRET is required"))
	} else if c.Production() && len(c.JWTSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("ACCOUNTS_JWT_SECRET must be at least %d bytes in production", jwtx.MinSecretLength))
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("ACCOUNTS_DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("ACCOUNTS_DATABASE_DSN is required"))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	return errors.Join(errs...)
}

func (c Config) Production() bool { return c.Env == EnvProduction }

func loadEnvFile() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(filepath.Clean(name))
		}
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

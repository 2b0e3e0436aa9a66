// Package config loads the server configuration from an optional .env file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendTiered    = "tiered"
	BackendMemory    = "memory"
)

// Config is the service configuration assembled from the environment.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Stripe   StripeConfig
	Supabase SupabaseConfig
	Storage  StorageConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	AppBaseURL      string
	ShutdownTimeout time.Duration
	// TrustProxy takes the client address from forwarding headers. Enable it
	// only behind a proxy that overwrites them.
	TrustProxy bool
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// StripeConfig holds the Stripe API key, price and webhook secret.
type StripeConfig struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
}

// SupabaseConfig points at the Supabase project used to verify access tokens.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
}

// StorageConfig selects the entitlement backend and its connection settings.
type StorageConfig struct {
	Backend            string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	FirestoreProjectID string
	RunMigrations      bool
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Load reads the given .env files (default ".env") and the process
// environment. Process variables win over file values. Missing files are
// skipped; malformed values are reported as errors.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	fileEnv := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		for k, v := range values {
			fileEnv[k] = v
		}
	}

	l := &loader{file: fileEnv}
	config := &Config{
		Server: ServerConfig{
			Port:            l.get("PORT", "8080"),
			AppBaseURL:      strings.TrimRight(l.get("APP_BASE_URL", ""), "/"),
			ShutdownTimeout: l.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustProxy:      l.getBool("TRUST_PROXY", false),
		},
		Log: LogConfig{
			Level:  l.get("LOG_LEVEL", "info"),
			Format: l.get("LOG_FORMAT", "json"),
		},
		Stripe: StripeConfig{
			SecretKey:     l.get("STRIPE_SECRET_KEY", ""),
			PriceID:       l.get("STRIPE_PRICE_ID", ""),
			WebhookSecret: l.get("STRIPE_WEBHOOK_SECRET", ""),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(l.get("SUPABASE_URL", ""), "/"),
			ServiceRoleKey: l.get("SUPABASE_SERVICE_ROLE_KEY", ""),
		},
		Storage: StorageConfig{
			Backend:            strings.ToLower(l.get("STORAGE_BACKEND", BackendPostgres)),
			DatabaseURL:        l.get("DATABASE_URL", ""),
			RedisAddr:          l.get("REDIS_ADDR", "localhost:6379"),
			RedisPassword:      l.get("REDIS_PASSWORD", ""),
			RedisDB:            l.getInt("REDIS_DB", 0),
			FirestoreProjectID: l.get("FIRESTORE_PROJECT_ID", ""),
			RunMigrations:      l.getBool("RUN_MIGRATIONS", false),
		},
		Metrics: MetricsConfig{
			Enabled:   l.getBool("METRICS_ENABLED", true),
			Namespace: l.get("METRICS_NAMESPACE", "fit4seniors"),
		},
	}

	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}
	if err := config.validateStorage(); err != nil {
		return nil, err
	}
	return config, nil
}

// Missing lists the required keys for the Stripe and auth surface that are
// unset. The server still starts; the affected handlers answer 500.
func (c *Config) Missing() []string {
	var missing []string
	check := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}
	check("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	check("STRIPE_PRICE_ID", c.Stripe.PriceID)
	check("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	check("APP_BASE_URL", c.Server.AppBaseURL)
	check("SUPABASE_URL", c.Supabase.URL)
	check("SUPABASE_SERVICE_ROLE_KEY", c.Supabase.ServiceRoleKey)
	return missing
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendPostgres, BackendTiered:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for storage backend %q", c.Storage.Backend)
		}
	case BackendFirestore:
		if c.Storage.FirestoreProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required for storage backend \"firestore\"")
		}
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}

type loader struct {
	file map[string]string
	errs []error
}

func (l *loader) get(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val, ok := l.file[key]; ok && val != "" {
		return val
	}
	return def
}

func (l *loader) getInt(key string, def int) int {
	raw := l.get(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return def
	}
	return v
}

func (l *loader) getBool(key string, def bool) bool {
	raw := l.get(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return def
	}
	return v
}

func (l *loader) getDuration(key string, def time.Duration) time.Duration {
	raw := l.get(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return def
	}
	return v
}

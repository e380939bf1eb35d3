// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage. An empty DatabaseURL selects the in-memory store; an empty
	// RedisURL disables the shared caches and the Redis rate limiter.
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"` // Accepted during key rotation

	// Ranking
	CalibrationPath          string        `koanf:"calibration_path"`
	InteractionLookbackDays  int           `koanf:"interaction_lookback_days"`
	AggregateRefreshInterval time.Duration `koanf:"aggregate_refresh_interval"`
	AggregateMaxStaleness    time.Duration `koanf:"aggregate_max_staleness"`
	ScoringConcurrency       int           `koanf:"scoring_concurrency"`
	LargePoolThreshold       int           `koanf:"large_pool_threshold"`
	MaxLimit                 int           `koanf:"max_limit"`

	// Analytics
	AnalyticsEnabled bool `koanf:"analytics_enabled"`
	AnalyticsBuffer  int  `koanf:"analytics_buffer"`

	// R2 (Cloudflare Object Storage) archive for analytics batches
	R2BucketName      string `koanf:"r2_bucket_name"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2Endpoint        string `koanf:"r2_endpoint"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`

	// Rate limiting
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidInteger           = errors.New("value must be a valid integer")
	ErrInvalidDuration          = errors.New("value must be a valid duration")
	ErrInvalidSampleRate        = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidExporter          = errors.New("TRACING_EXPORTER must be otlp-grpc or otlp-http")
	ErrNonPositive              = errors.New("value must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultInteractionLookbackDays  = 90
	DefaultAggregateRefreshInterval = 5 * time.Minute
	DefaultAggregateMaxStaleness    = 24 * time.Hour
	DefaultScoringConcurrency       = 32
	DefaultLargePoolThreshold       = 5000
	DefaultMaxLimit                 = 100
	DefaultAnalyticsBuffer          = 1024
	DefaultTracingExporter          = "otlp-http"
	DefaultTracingSampleRate        = 0.1
	DefaultRateLimitRequests        = 30
	DefaultRateLimitWindow          = time.Minute
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	port, err := getEnvIntOrDefaultMulti([]string{"MATCHCORE_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %w", ErrInvalidPort, err))
	}

	lookbackDays, err := getEnvIntOrDefault("INTERACTION_LOOKBACK_DAYS", k.Int("interaction_lookback_days"), DefaultInteractionLookbackDays)
	collect(err)
	concurrency, err := getEnvIntOrDefault("SCORING_CONCURRENCY", k.Int("scoring_concurrency"), DefaultScoringConcurrency)
	collect(err)
	largePool, err := getEnvIntOrDefault("LARGE_POOL_THRESHOLD", k.Int("large_pool_threshold"), DefaultLargePoolThreshold)
	collect(err)
	maxLimit, err := getEnvIntOrDefault("MAX_LIMIT", k.Int("max_limit"), DefaultMaxLimit)
	collect(err)
	analyticsBuffer, err := getEnvIntOrDefault("ANALYTICS_BUFFER", k.Int("analytics_buffer"), DefaultAnalyticsBuffer)
	collect(err)
	rateLimitRequests, err := getEnvIntOrDefault("RATE_LIMIT_REQUESTS", k.Int("rate_limit_requests"), DefaultRateLimitRequests)
	collect(err)

	refreshInterval, err := getEnvDurationOrDefault("AGGREGATE_REFRESH_INTERVAL", k.Duration("aggregate_refresh_interval"), DefaultAggregateRefreshInterval)
	collect(err)
	maxStaleness, err := getEnvDurationOrDefault("AGGREGATE_MAX_STALENESS", k.Duration("aggregate_max_staleness"), DefaultAggregateMaxStaleness)
	collect(err)
	rateLimitWindow, err := getEnvDurationOrDefault("RATE_LIMIT_WINDOW", k.Duration("rate_limit_window"), DefaultRateLimitWindow)
	collect(err)

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	collect(err)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                     port,
		Env:                      getEnvOrDefaultMulti([]string{"MATCHCORE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:              getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                 getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:                getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:        getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		CalibrationPath:          getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		InteractionLookbackDays:  lookbackDays,
		AggregateRefreshInterval: refreshInterval,
		AggregateMaxStaleness:    maxStaleness,
		ScoringConcurrency:       concurrency,
		LargePoolThreshold:       largePool,
		MaxLimit:                 maxLimit,
		AnalyticsEnabled:         getEnvBoolOrDefault("ANALYTICS_ENABLED", k, "analytics_enabled", false),
		AnalyticsBuffer:          analyticsBuffer,
		R2BucketName:             getEnvOrKoanf("R2_BUCKET_NAME", k, "r2_bucket_name"),
		R2AccessKeyID:            getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "r2_access_key_id"),
		R2SecretAccessKey:        getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "r2_secret_access_key"),
		R2Endpoint:               getEnvOrKoanf("R2_ENDPOINT", k, "r2_endpoint"),
		TracingEnabled:           getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		OTLPEndpoint:             getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingExporter:          getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingSampleRate:        sampleRate,
		RateLimitRequests:        rateLimitRequests,
		RateLimitWindow:          rateLimitWindow,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// InteractionLookback returns the lookback window as a duration.
func (c *Config) InteractionLookback() time.Duration {
	return time.Duration(c.InteractionLookbackDays) * 24 * time.Hour
}

// ArchiveEnabled reports whether analytics batches go to R2.
func (c *Config) ArchiveEnabled() bool {
	return c.R2BucketName != ""
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// A zero value from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Unlike the integer helpers an explicit 0 in the file is honoured, since a
// sample rate of zero is meaningful.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration if set
// (Go syntax, e.g. "5m"), otherwise the koanf value, or default.
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault reads a feature flag. Env takes precedence over the file;
// unrecognised env values leave the file or default value in place.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"INTERACTION_LOOKBACK_DAYS", int64(c.InteractionLookbackDays)},
		{"SCORING_CONCURRENCY", int64(c.ScoringConcurrency)},
		{"LARGE_POOL_THRESHOLD", int64(c.LargePoolThreshold)},
		{"MAX_LIMIT", int64(c.MaxLimit)},
		{"ANALYTICS_BUFFER", int64(c.AnalyticsBuffer)},
		{"RATE_LIMIT_REQUESTS", int64(c.RateLimitRequests)},
		{"AGGREGATE_REFRESH_INTERVAL", int64(c.AggregateRefreshInterval)},
		{"AGGREGATE_MAX_STALENESS", int64(c.AggregateMaxStaleness)},
		{"RATE_LIMIT_WINDOW", int64(c.RateLimitWindow)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, ErrNonPositive))
		}
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingExporter != "otlp-grpc" && c.TracingExporter != "otlp-http" {
		errs = append(errs, ErrInvalidExporter)
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.R2BucketName != "" || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" || c.R2Endpoint != "" {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       strconv.Itoa(c.Port),
		"env":                        c.Env,
		"database_url":               maskDatabaseURL(c.DatabaseURL),
		"redis_url":                  maskDatabaseURL(c.RedisURL),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"jwt_previous_secret":        maskSecret(c.JWTPreviousSecret),
		"calibration_path":           c.CalibrationPath,
		"interaction_lookback_days":  strconv.Itoa(c.InteractionLookbackDays),
		"aggregate_refresh_interval": c.AggregateRefreshInterval.String(),
		"aggregate_max_staleness":    c.AggregateMaxStaleness.String(),
		"scoring_concurrency":        strconv.Itoa(c.ScoringConcurrency),
		"large_pool_threshold":       strconv.Itoa(c.LargePoolThreshold),
		"max_limit":                  strconv.Itoa(c.MaxLimit),
		"analytics_enabled":          strconv.FormatBool(c.AnalyticsEnabled),
		"analytics_buffer":           strconv.Itoa(c.AnalyticsBuffer),
		"r2_bucket_name":             c.R2BucketName,
		"r2_access_key_id":           maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":       maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":                c.R2Endpoint,
		"tracing_enabled":            strconv.FormatBool(c.TracingEnabled),
		"otlp_endpoint":              c.OTLPEndpoint,
		"tracing_exporter":           c.TracingExporter,
		"tracing_sample_rate":        strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
		"rate_limit_requests":        strconv.Itoa(c.RateLimitRequests),
		"rate_limit_window":          c.RateLimitWindow.String(),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}

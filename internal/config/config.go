// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Optional in development, where an in-memory store is used.
	DatabaseURL string `koanf:"database_url"`

	// Redis, used for rate limiting. Optional; the in-process limiter is
	// used when unset.
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication. The previous secret supports zero-downtime
	// rotation and may be empty.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// TokenMintEnabled turns on the POST /auth/token endpoint. Development
	// convenience only.
	TokenMintEnabled bool `koanf:"token_mint_enabled"`

	// Stripe
	StripeAPIKey        string `koanf:"stripe_api_key"`
	StripeWebhookSecret string `koanf:"stripe_webhook_secret"`
	StripeSuccessURL    string `koanf:"stripe_success_url"`
	StripeCancelURL     string `koanf:"stripe_cancel_url"`

	// S3-compatible object storage for photos.
	S3BucketName      string `koanf:"s3_bucket_name"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3PublicBaseURL   string `koanf:"s3_public_base_url"`
	S3MaxUploadSizeMB int    `koanf:"s3_max_upload_size_mb"` // Default: 15MB

	// StoreSyncEnabled gates downloading catalog photos into the staging
	// area for face matching. Disabling it turns every match request into
	// a no-candidates response; useful when the blob store bill matters
	// more than the feature.
	StoreSyncEnabled bool `koanf:"store_sync_enabled"` // Default: true

	// Face recognition service.
	FaceMatchURL            string `koanf:"facematch_url"`
	FaceMatchTimeoutSeconds int    `koanf:"facematch_timeout_seconds"` // Default: 30s

	// Selfie staging area.
	StagingRoot          string `koanf:"staging_root"`            // Default: <tmp>/fotopro-staging
	StagingMaxAgeMinutes int    `koanf:"staging_max_age_minutes"` // Default: 60

	// CORS
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"` // comma-separated

	// FaceMatchRateLimit caps face-match requests per user per minute.
	FaceMatchRateLimit int `koanf:"facematch_rate_limit"` // Default: 5
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret           = errors.New("JWT_SECRET is required")
	ErrMissingFaceMatchURL        = errors.New("FACEMATCH_URL is required")
	ErrMissingDatabaseURL         = errors.New("DATABASE_URL is required in production")
	ErrMissingStripeAPIKey        = errors.New("STRIPE_API_KEY is required")
	ErrMissingStripeWebhookSecret = errors.New("STRIPE_WEBHOOK_SECRET is required")
	ErrMissingStripeSuccessURL    = errors.New("STRIPE_SUCCESS_URL is required")
	ErrMissingStripeCancelURL     = errors.New("STRIPE_CANCEL_URL is required")
	ErrMissingS3BucketName        = errors.New("S3_BUCKET_NAME is required")
	ErrMissingS3AccessKeyID       = errors.New("S3_ACCESS_KEY_ID is required")
	ErrMissingS3SecretAccessKey   = errors.New("S3_SECRET_ACCESS_KEY is required")
	ErrMissingS3Endpoint          = errors.New("S3_ENDPOINT is required")
	ErrInvalidPort                = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultS3MaxUploadSizeMB       = 15
	DefaultFaceMatchTimeoutSeconds = 30
	DefaultStagingMaxAgeMinutes    = 60
	DefaultFaceMatchRateLimit      = 5
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

	port, portErr := getEnvIntOrDefaultMulti([]string{"FOTOPRO_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("S3_MAX_UPLOAD_SIZE_MB", k.Int("s3_max_upload_size_mb"), DefaultS3MaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}

	matchTimeout, timeoutErr := getEnvIntOrDefault("FACEMATCH_TIMEOUT_SECONDS", k.Int("facematch_timeout_seconds"), DefaultFaceMatchTimeoutSeconds)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}

	stagingMaxAge, stagingErr := getEnvIntOrDefault("STAGING_MAX_AGE_MINUTES", k.Int("staging_max_age_minutes"), DefaultStagingMaxAgeMinutes)
	if stagingErr != nil {
		loadErrs = append(loadErrs, stagingErr)
	}

	rateLimit, rateErr := getEnvIntOrDefault("FACEMATCH_RATE_LIMIT", k.Int("facematch_rate_limit"), DefaultFaceMatchRateLimit)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	tokenMint := getEnvBool("TOKEN_MINT_ENABLED", k, "token_mint_enabled", false)
	storeSync := getEnvBool("STORE_SYNC_ENABLED", k, "store_sync_enabled", true)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                    port,
		Env:                     getEnvOrDefaultMulti([]string{"FOTOPRO_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:             getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:               getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:       getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		TokenMintEnabled:        tokenMint,
		StripeAPIKey:            getEnvOrKoanf("STRIPE_API_KEY", k, "stripe_api_key"),
		StripeWebhookSecret:     getEnvOrKoanf("STRIPE_WEBHOOK_SECRET", k, "stripe_webhook_secret"),
		StripeSuccessURL:        getEnvOrKoanf("STRIPE_SUCCESS_URL", k, "stripe_success_url"),
		StripeCancelURL:         getEnvOrKoanf("STRIPE_CANCEL_URL", k, "stripe_cancel_url"),
		S3BucketName:            getEnvOrKoanf("S3_BUCKET_NAME", k, "s3_bucket_name"),
		S3AccessKeyID:           getEnvOrKoanf("S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey:       getEnvOrKoanf("S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		S3Endpoint:              getEnvOrKoanf("S3_ENDPOINT", k, "s3_endpoint"),
		S3PublicBaseURL:         getEnvOrKoanf("S3_PUBLIC_BASE_URL", k, "s3_public_base_url"),
		S3MaxUploadSizeMB:       maxUploadSize,
		StoreSyncEnabled:        storeSync,
		FaceMatchURL:            getEnvOrKoanf("FACEMATCH_URL", k, "facematch_url"),
		FaceMatchTimeoutSeconds: matchTimeout,
		StagingRoot:             getEnvOrKoanf("STAGING_ROOT", k, "staging_root"),
		StagingMaxAgeMinutes:    stagingMaxAge,
		CORSAllowedOrigins:      getEnvOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		FaceMatchRateLimit:      rateLimit,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// IsProduction reports whether the server runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnvBool returns a boolean setting with env taking precedence over the
// file value, falling back to the default when neither is set.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	v := defaultVal
	if k.Exists(koanfKey) {
		v = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			v = true
		case "false", "0", "no", "off":
			v = false
		}
	}
	return v
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
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
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.FaceMatchURL == "" {
		errs = append(errs, ErrMissingFaceMatchURL)
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}

	// Stripe configuration is optional as a group. Checkout routes are
	// disabled when it is absent; a partial group is a mistake.
	if c.StripeAPIKey != "" || c.StripeWebhookSecret != "" || c.StripeSuccessURL != "" || c.StripeCancelURL != "" {
		if c.StripeAPIKey == "" {
			errs = append(errs, ErrMissingStripeAPIKey)
		}
		if c.StripeWebhookSecret == "" {
			errs = append(errs, ErrMissingStripeWebhookSecret)
		}
		if c.StripeSuccessURL == "" {
			errs = append(errs, ErrMissingStripeSuccessURL)
		}
		if c.StripeCancelURL == "" {
			errs = append(errs, ErrMissingStripeCancelURL)
		}
	}

	// S3 configuration is likewise an all-or-nothing group.
	if c.S3BucketName != "" || c.S3AccessKeyID != "" || c.S3SecretAccessKey != "" || c.S3Endpoint != "" {
		if c.S3BucketName == "" {
			errs = append(errs, ErrMissingS3BucketName)
		}
		if c.S3AccessKeyID == "" {
			errs = append(errs, ErrMissingS3AccessKeyID)
		}
		if c.S3SecretAccessKey == "" {
			errs = append(errs, ErrMissingS3SecretAccessKey)
		}
		if c.S3Endpoint == "" {
			errs = append(errs, ErrMissingS3Endpoint)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      fmt.Sprintf("%d", c.Port),
		"env":                       c.Env,
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"jwt_secret":                maskSecret(c.JWTSecret),
		"jwt_previous_secret":       maskSecret(c.JWTPreviousSecret),
		"token_mint_enabled":        fmt.Sprintf("%t", c.TokenMintEnabled),
		"stripe_api_key":            maskStripeKey(c.StripeAPIKey),
		"stripe_webhook_secret":     maskSecret(c.StripeWebhookSecret),
		"stripe_success_url":        c.StripeSuccessURL,
		"stripe_cancel_url":         c.StripeCancelURL,
		"s3_bucket_name":            c.S3BucketName,
		"s3_access_key_id":          maskSecret(c.S3AccessKeyID),
		"s3_secret_access_key":      maskSecret(c.S3SecretAccessKey),
		"s3_endpoint":               c.S3Endpoint,
		"s3_public_base_url":        c.S3PublicBaseURL,
		"s3_max_upload_size_mb":     fmt.Sprintf("%d", c.S3MaxUploadSizeMB),
		"store_sync_enabled":        fmt.Sprintf("%t", c.StoreSyncEnabled),
		"facematch_url":             c.FaceMatchURL,
		"facematch_timeout_seconds": fmt.Sprintf("%d", c.FaceMatchTimeoutSeconds),
		"facematch_rate_limit":      fmt.Sprintf("%d", c.FaceMatchRateLimit),
		"staging_root":              c.StagingRoot,
		"staging_max_age_minutes":   fmt.Sprintf("%d", c.StagingMaxAgeMinutes),
		"cors_allowed_origins":      c.CORSAllowedOrigins,
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

// maskStripeKey masks a Stripe API key, preserving the prefix (sk_live_, sk_test_, etc.)
func maskStripeKey(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Stripe keys have format like sk_live_..., sk_test_..., pk_live_..., etc.
	parts := strings.SplitN(s, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + parts[1] + "_****"
	}

	// Fallback to generic masking
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a database or Redis URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
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

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}

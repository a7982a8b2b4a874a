// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	Port        string `mapstructure:"PORT"`

	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBReadHost                    string `mapstructure:"DB_READ_HOST"`
	DBReadPort                    string `mapstructure:"DB_READ_PORT"`
	DBReadUser                    string `mapstructure:"DB_READ_USER"`
	DBReadPassword                string `mapstructure:"DB_READ_PASSWORD"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	Env            string `mapstructure:"APP_ENV"`

	// Object store
	StorageDir            string `mapstructure:"STORAGE_DIR"`
	StoragePublicURL      string `mapstructure:"STORAGE_PUBLIC_URL"`
	StorageSigningSecret  string `mapstructure:"STORAGE_SIGNING_SECRET"`
	UploadURLTTLMinutes   int    `mapstructure:"UPLOAD_URL_TTL_MINUTES"`
	DownloadURLTTLMinutes int    `mapstructure:"DOWNLOAD_URL_TTL_MINUTES"`
	PhotoMaxMB            int    `mapstructure:"PHOTO_MAX_MB"`
	VideoMaxMB            int    `mapstructure:"VIDEO_MAX_MB"`

	// Moderation classifier
	ModerationDriver         string `mapstructure:"MODERATION_DRIVER"`
	ModerationURL            string `mapstructure:"MODERATION_URL"`
	ModerationAPIKey         string `mapstructure:"MODERATION_API_KEY"`
	ModerationTimeoutSeconds int    `mapstructure:"MODERATION_TIMEOUT_SECONDS"`
	ModerationBlocklist      string `mapstructure:"MODERATION_BLOCKLIST"`

	// Transcoding service
	TranscoderDriver         string `mapstructure:"TRANSCODER_DRIVER"`
	TranscoderURL            string `mapstructure:"TRANSCODER_URL"`
	TranscoderCallbackURL    string `mapstructure:"TRANSCODER_CALLBACK_URL"`
	TranscoderCallbackSecret string `mapstructure:"TRANSCODER_CALLBACK_SECRET"`
	TranscoderWorkers        int    `mapstructure:"TRANSCODER_WORKERS"`
	TranscodeLadder          string `mapstructure:"TRANSCODE_LADDER"`

	// Engagement scoring. Weights are tunable; see Validate for the constraints
	// that keep the score monotonic in every counter.
	ScoreWeightLikes    float64 `mapstructure:"SCORE_WEIGHT_LIKES"`
	ScoreWeightComments float64 `mapstructure:"SCORE_WEIGHT_COMMENTS"`
	ScoreWeightShares   float64 `mapstructure:"SCORE_WEIGHT_SHARES"`
	ScoreWeightViews    float64 `mapstructure:"SCORE_WEIGHT_VIEWS"`
	ScoreGravity        float64 `mapstructure:"SCORE_GRAVITY"`
	ScoreAgeOffsetHours float64 `mapstructure:"SCORE_AGE_OFFSET_HOURS"`

	FeedDefaultLimit  int `mapstructure:"FEED_DEFAULT_LIMIT"`
	FeedMaxLimit      int `mapstructure:"FEED_MAX_LIMIT"`
	ViewDedupeMinutes int `mapstructure:"VIEW_DEDUPE_MINUTES"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

const (
	defaultJWTSecret     = "your-secret-key-change-in-production"
	defaultSigningSecret = "storage-signing-secret-change-me"
	defaultCallbackToken = "transcoder-callback-secret-change-me"

	// DefaultTranscodeLadder is quality:bitrateKbps:widthxheight, low to high.
	DefaultTranscodeLadder = "240p:400:426x240,480p:1000:854x480,720p:2500:1280x720,1080p:5000:1920x1080"
)

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("JWT_ISSUER", "momento-identity")
	viper.SetDefault("JWT_AUDIENCE", "momento-client")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "momento")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_READ_HOST", "")
	viper.SetDefault("DB_READ_PORT", "5432")
	viper.SetDefault("DB_READ_USER", "user")
	viper.SetDefault("DB_READ_PASSWORD", "password")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("APP_ENV", "development")

	viper.SetDefault("STORAGE_DIR", "/tmp/momento/objects")
	viper.SetDefault("STORAGE_PUBLIC_URL", "http://localhost:8375")
	viper.SetDefault("STORAGE_SIGNING_SECRET", defaultSigningSecret)
	viper.SetDefault("UPLOAD_URL_TTL_MINUTES", 15)
	viper.SetDefault("DOWNLOAD_URL_TTL_MINUTES", 60)
	viper.SetDefault("PHOTO_MAX_MB", 10)
	viper.SetDefault("VIDEO_MAX_MB", 100)

	viper.SetDefault("MODERATION_DRIVER", "keyword")
	viper.SetDefault("MODERATION_URL", "")
	viper.SetDefault("MODERATION_API_KEY", "")
	viper.SetDefault("MODERATION_TIMEOUT_SECONDS", 10)
	viper.SetDefault("MODERATION_BLOCKLIST", "")

	viper.SetDefault("TRANSCODER_DRIVER", "local")
	viper.SetDefault("TRANSCODER_URL", "")
	viper.SetDefault("TRANSCODER_CALLBACK_URL", "http://localhost:8375/media/transcode/callback")
	viper.SetDefault("TRANSCODER_CALLBACK_SECRET", defaultCallbackToken)
	viper.SetDefault("TRANSCODER_WORKERS", 2)
	viper.SetDefault("TRANSCODE_LADDER", DefaultTranscodeLadder)

	viper.SetDefault("SCORE_WEIGHT_LIKES", 1.0)
	viper.SetDefault("SCORE_WEIGHT_COMMENTS", 1.0)
	viper.SetDefault("SCORE_WEIGHT_SHARES", 1.0)
	viper.SetDefault("SCORE_WEIGHT_VIEWS", 1.0)
	viper.SetDefault("SCORE_GRAVITY", 1.5)
	viper.SetDefault("SCORE_AGE_OFFSET_HOURS", 2.0)

	viper.SetDefault("FEED_DEFAULT_LIMIT", 20)
	viper.SetDefault("FEED_MAX_LIMIT", 50)
	viper.SetDefault("VIEW_DEDUPE_MINUTES", 30)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.StorageSigningSecret == "" {
		return errors.New("STORAGE_SIGNING_SECRET is required")
	}
	if c.TranscoderCallbackSecret == "" {
		return errors.New("TRANSCODER_CALLBACK_SECRET is required")
	}
	if c.PhotoMaxMB <= 0 || c.VideoMaxMB <= 0 {
		return errors.New("PHOTO_MAX_MB and VIDEO_MAX_MB must be positive")
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must not be negative")
	}

	if err := c.validateScoring(); err != nil {
		return err
	}

	switch c.ModerationDriver {
	case "keyword", "":
	case "http":
		if c.ModerationURL == "" {
			return errors.New("MODERATION_URL is required when MODERATION_DRIVER=http")
		}
	default:
		return fmt.Errorf("unsupported MODERATION_DRIVER %q", c.ModerationDriver)
	}

	switch c.TranscoderDriver {
	case "local", "":
	case "http":
		if c.TranscoderURL == "" {
			return errors.New("TRANSCODER_URL is required when TRANSCODER_DRIVER=http")
		}
	default:
		return fmt.Errorf("unsupported TRANSCODER_DRIVER %q", c.TranscoderDriver)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.StorageSigningSecret == defaultSigningSecret {
			return errors.New("STORAGE_SIGNING_SECRET must be changed from the default value in production")
		}
		if c.TranscoderCallbackSecret == defaultCallbackToken {
			return errors.New("TRANSCODER_CALLBACK_SECRET must be changed from the default value in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

func (c *Config) validateScoring() error {
	for name, w := range map[string]float64{
		"SCORE_WEIGHT_LIKES":    c.ScoreWeightLikes,
		"SCORE_WEIGHT_COMMENTS": c.ScoreWeightComments,
		"SCORE_WEIGHT_SHARES":   c.ScoreWeightShares,
		"SCORE_WEIGHT_VIEWS":    c.ScoreWeightViews,
		"SCORE_GRAVITY":         c.ScoreGravity,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.ScoreAgeOffsetHours <= 0 {
		return errors.New("SCORE_AGE_OFFSET_HOURS must be positive")
	}
	return nil
}

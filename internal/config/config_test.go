package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                      "development",
		DBSSLMode:                "disable",
		JWTSecret:                "secure-secret-at-least-32-chars-long",
		DBPassword:               "secure-password",
		Port:                     "8080",
		StorageSigningSecret:     "signing-secret-that-is-long-enough",
		TranscoderCallbackSecret: "callback-secret-that-is-long-enough",
		PhotoMaxMB:               10,
		VideoMaxMB:               100,
		DBConnMaxLifetimeMinutes: 1,
		RedisURL:                 "redis://localhost:6379",
		ModerationDriver:         "keyword",
		TranscoderDriver:         "local",
		ScoreWeightLikes:         1,
		ScoreWeightComments:      1,
		ScoreWeightShares:        1,
		ScoreWeightViews:         1,
		ScoreGravity:             1.5,
		ScoreAgeOffsetHours:      2,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateScoring(t *testing.T) {
	c := validConfig()
	c.ScoreWeightViews = -0.5
	assert.ErrorContains(t, c.Validate(), "SCORE_WEIGHT_VIEWS")

	c = validConfig()
	c.ScoreAgeOffsetHours = 0
	assert.ErrorContains(t, c.Validate(), "SCORE_AGE_OFFSET_HOURS")

	c = validConfig()
	c.ScoreGravity = 0
	assert.NoError(t, c.Validate())
}

func TestConfig_ValidateDrivers(t *testing.T) {
	c := validConfig()
	c.ModerationDriver = "http"
	assert.ErrorContains(t, c.Validate(), "MODERATION_URL")
	c.ModerationURL = "http://classifier.local/v1/classify"
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.TranscoderDriver = "ffmpeg"
	assert.Error(t, c.Validate())
}

func TestConfig_ProductionRejectsDefaultSecrets(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.DBSSLMode = "require"
	c.StorageSigningSecret = defaultSigningSecret
	assert.ErrorContains(t, c.Validate(), "STORAGE_SIGNING_SECRET")
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_SSLMODE")
	defer viper.Reset()

	os.Setenv("APP_ENV", "development")
	os.Setenv("DB_SSLMODE", "  DISABLE  ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, 20, c.FeedDefaultLimit)
	assert.Equal(t, 50, c.FeedMaxLimit)
	assert.Equal(t, DefaultTranscodeLadder, c.TranscodeLadder)
	assert.InDelta(t, 1.0, c.ScoreWeightLikes, 1e-9)
}

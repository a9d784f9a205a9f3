package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "unit-test-secret-key-0123456789abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, time.Hour, cfg.Security.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Security.RefreshTokenTTL)
	assert.EqualValues(t, 10000, cfg.Security.EventLogCap)
	assert.Equal(t, 5*time.Minute, cfg.Security.MFASetupTTL)
	assert.Equal(t, 10, cfg.Security.BackupCodeCount)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsShortSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "too-short")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigCrossFieldValidation(t *testing.T) {
	t.Setenv("SECRET_KEY", "unit-test-secret-key-0123456789abcdef")
	t.Setenv("KMS_ENABLED", "true")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KMS_KEY_ID")
}

func TestDurationsAcceptPlainSeconds(t *testing.T) {
	t.Setenv("SECRET_KEY", "unit-test-secret-key-0123456789abcdef")
	t.Setenv("ACCESS_TOKEN_TTL", "3600")
	t.Setenv("MFA_SETUP_TTL", "300")
	t.Setenv("REFRESH_TOKEN_TTL", "168h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Security.AccessTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Security.MFASetupTTL)
	assert.Equal(t, 168*time.Hour, cfg.Security.RefreshTokenTTL)
}

func TestEnvListParsing(t *testing.T) {
	t.Setenv("SECRET_KEY", "unit-test-secret-key-0123456789abcdef")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
}

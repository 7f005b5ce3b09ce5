package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
	t.Setenv("VERIFICATION_SERVICE_URL", "http://verifier.local")
	t.Setenv("SERVICE_TOKEN", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5300", cfg.HTTPAddr)
	assert.Equal(t, time.Minute, cfg.SettlementInterval)
	assert.Equal(t, 5*time.Minute, cfg.FinalizeWindow)
	assert.Equal(t, 20*time.Second, cfg.VerificationTimeout)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("SETTLEMENT_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SETTLEMENT_INTERVAL", "-1m")
	_, err = Load()
	assert.Error(t, err)
}

func TestR2Enabled(t *testing.T) {
	setRequired(t)
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "id")
	t.Setenv("R2_ACCESS_KEY_SECRET", "secret")
	t.Setenv("R2_BUCKET_NAME", "receipts")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.R2.Enabled())
}

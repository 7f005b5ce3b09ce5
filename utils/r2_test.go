package utils

import (
	"context"
	"testing"

	"tournament-settlement/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitR2DefaultsCDNToBucketEndpoint(t *testing.T) {
	r2, err := InitR2(context.Background(), config.R2Config{
		AccountID:       "acct",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "receipts",
	})

	require.NoError(t, err)
	assert.NotNil(t, r2.Client)
	assert.Equal(t, "receipts", r2.Bucket)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com/receipts", r2.CDNBaseURL)
}

func TestInitR2KeepsExplicitCDN(t *testing.T) {
	r2, err := InitR2(context.Background(), config.R2Config{
		AccountID:       "acct",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "receipts",
		CDNBaseURL:      "https://cdn.example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", r2.CDNBaseURL)
}

func TestNewLogger(t *testing.T) {
	dev, err := NewLogger("development")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := NewLogger("production")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))
}

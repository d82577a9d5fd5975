package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATA_API_URL", "http://localhost:5000")
	t.Setenv("SESSION_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.DataAPIURL)
	assert.Equal(t, ":5003", cfg.ServerAddress)
	assert.Equal(t, "Digital Marketplace Admin", cfg.NotifyFromName)
	assert.True(t, cfg.FeatureContractVariations)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_API_URL", "http://api.internal:5000")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("FEATURE_CONTRACT_VARIATIONS", "false")
	t.Setenv("CLARIFICATION_EMAIL", "clarification@example.com")
	t.Setenv("FOLLOW_UP_EMAIL", "follow-up@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ServerAddress)
	assert.False(t, cfg.FeatureContractVariations)
	assert.Equal(t, "clarification@example.com", cfg.ClarificationEmail)
	assert.Equal(t, "follow-up@example.com", cfg.FollowUpEmail)
}

func TestLoadRequiresDataAPIURL(t *testing.T) {
	t.Setenv("DATA_API_URL", "")
	t.Setenv("SESSION_SECRET", "test-secret")

	_, err := Load()
	assert.Error(t, err)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, VectorBackendMemory, cfg.VectorBackend)
	assert.Equal(t, SessionBackendMemory, cfg.SessionBackend)
	assert.Equal(t, EmbeddingProviderLocal, cfg.EmbeddingProvider)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VECTOR_BACKEND", "chroma")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, VectorBackendChroma, cfg.VectorBackend)
	assert.Equal(t, SessionBackendRedis, cfg.SessionBackend)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "pinecone")

	_, err := Load()

	assert.Error(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := Load()

	assert.Error(t, err)
}

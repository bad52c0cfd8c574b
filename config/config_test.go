package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwave/vectorwave-go/config"
)

func TestDefault(t *testing.T) {
	s := config.Default()
	require.NoError(t, s.Validate())

	assert.Equal(t, float64(0), s.CacheThreshold, "caching is opt-in")
	assert.Equal(t, 0.25, s.SteadyMargin)
	assert.Equal(t, 0.40, s.DiscoveryMargin)
	assert.Equal(t, 20, s.BatchSize)
	assert.Equal(t, 2*time.Second, s.FlushInterval)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("VECTORWAVE_CACHE_THRESHOLD", "0.15")
	t.Setenv("VECTORWAVE_SENSITIVE_KEYS", "api_key,password")
	t.Setenv("VECTORWAVE_GLOBAL_TAGS", "service:billing,region:eu")
	t.Setenv("VECTORWAVE_BATCH_SIZE", "5")
	t.Setenv("VECTORWAVE_FLUSH_INTERVAL", "500ms")

	s, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 0.15, s.CacheThreshold)
	assert.Equal(t, []string{"api_key", "password"}, s.SensitiveKeys)
	assert.Equal(t, map[string]string{"service": "billing", "region": "eu"}, s.GlobalTags)
	assert.Equal(t, 5, s.BatchSize)
	assert.Equal(t, 500*time.Millisecond, s.FlushInterval)
}

func TestLoad_RejectsInvalidMargins(t *testing.T) {
	t.Setenv("VECTORWAVE_STEADY_MARGIN", "0.5")
	t.Setenv("VECTORWAVE_DISCOVERY_MARGIN", "0.2")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := config.Default()
	s.BatchSize = 0
	assert.Error(t, s.Validate())

	s = config.Default()
	s.FlushInterval = 0
	assert.Error(t, s.Validate())

	s = config.Default()
	s.QueueSize = 0
	assert.Error(t, s.Validate())
}

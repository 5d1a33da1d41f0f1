package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServeEnvDefaults(t *testing.T) {
	t.Setenv("PROPHET_SERVER_PORT", "9090")
	t.Setenv("PROPHET_SERVER_OPEN", "yes")
	t.Setenv("PROPHET_SERVER_HOST", "  ")

	assert.Equal(t, 9090, envIntOrDefault("PROPHET_SERVER_PORT", 8080))
	assert.True(t, envBoolOrDefault("PROPHET_SERVER_OPEN", false))
	assert.Equal(t, "127.0.0.1", envOrDefault("PROPHET_SERVER_HOST", "127.0.0.1"))

	t.Setenv("PROPHET_SERVER_PORT", "-1")
	t.Setenv("PROPHET_SERVER_OPEN", "maybe")
	assert.Equal(t, 8080, envIntOrDefault("PROPHET_SERVER_PORT", 8080))
	assert.False(t, envBoolOrDefault("PROPHET_SERVER_OPEN", false))
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("localhost"))
	assert.True(t, isLocalhost("::1"))
	assert.False(t, isLocalhost("0.0.0.0"))
}

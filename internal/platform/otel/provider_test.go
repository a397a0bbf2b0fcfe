package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/internal/platform/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTelConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTelConfig{Endpoint: "http://127.0.0.1:4318", ServiceName: "escrowops-test"})
	require.NoError(t, err)
	// Nothing was exported, so shutdown does not need the collector.
	assert.NoError(t, shutdown(context.Background()))
}

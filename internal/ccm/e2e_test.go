package ccm

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/ccmbridge/internal/config"
)

// e2eHarness runs against a real ccm installation. It needs CCM_E2E=1 and the usual
// settings (CASSANDRA_VERSION and friends) in the environment.
func e2eHarness(t *testing.T) *Harness {
	t.Helper()
	if os.Getenv("CCM_E2E") == "" {
		t.Skip("Skipping e2e test (set CCM_E2E=1 to run)")
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	h, err := NewHarness(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestE2E_SingleNode(t *testing.T) {
	h := e2eHarness(t)
	ctx := context.Background()

	c, err := h.Builder().Build(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close(context.Background()))
	})

	prefix := h.Config().IPPrefix
	assert.Equal(t, []string{prefix + "1"}, c.ContactPoints())
	require.NoError(t, c.WaitForUp(ctx, 1))

	release, err := c.WaitForCQL(ctx, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, release)
}

func TestE2E_StopStartNode(t *testing.T) {
	h := e2eHarness(t)
	ctx := context.Background()

	c, err := h.Builder().WithNodes(2).Build(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close(context.Background()))
	})

	require.NoError(t, c.StopNode(ctx, 2))
	require.NoError(t, c.WaitForDown(ctx, 2))
	require.NoError(t, c.StartNode(ctx, 2))
	require.NoError(t, c.WaitForUp(ctx, 2))
	assert.NotContains(t, c.CheckForErrors(ctx), "ERROR")
}

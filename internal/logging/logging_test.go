package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestSetupInstallsGlobalLogger(t *testing.T) {
	logger, err := Setup(Options{Level: "debug", Mode: "production", File: filepath.Join(t.TempDir(), "pos.log")})
	require.NoError(t, err)
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	assert.Same(t, logger, zap.L())
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewInstallsGlobal(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log, err := New("production", "hivis-loyalty")
	require.NoError(t, err)
	require.Same(t, log, zap.L())

	dev, err := New("development", "hivis-loyalty")
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zap.DebugLevel))
	require.False(t, log.Core().Enabled(zap.DebugLevel))
}

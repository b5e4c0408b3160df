package common

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/config"
	"github.com/oasisprotocol/custody/log"
)

func TestLoggingFlagsOverrideConfig(t *testing.T) {
	cfg := &config.Config{Log: &config.LogConfig{Level: "debug", Format: "logfmt"}}

	require.NoError(t, Init(cfg))
	require.Equal(t, log.LevelDebug, RootLogger().Level())

	require.NoError(t, LoggingFlags.Parse([]string{"--log.level=warn", "--log.format=json"}))
	require.NoError(t, Init(cfg))
	require.Equal(t, log.LevelWarn, RootLogger().Level())

	require.Error(t, LoggingFlags.Parse([]string{"--log.level=loud"}))
}

func TestNewLedgerInMemory(t *testing.T) {
	l, err := NewLedger(t.Context(), &config.LedgerConfig{Backend: "inmemory"}, log.NewDefaultLogger("test"))
	require.NoError(t, err)
	require.Equal(t, "inmemory", l.Name())
	require.NoError(t, l.Close())
}

package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
}

func TestLogWriterSelectsConsole(t *testing.T) {
	_, ok := logWriter(Config{Format: "console"}).(zerolog.ConsoleWriter)
	require.True(t, ok)

	_, ok = logWriter(Config{Format: "json"}).(zerolog.ConsoleWriter)
	require.False(t, ok)
}

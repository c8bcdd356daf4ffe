package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredWriter_Flush(t *testing.T) {
	var w DeferredWriter

	buf := []byte("first\n")
	_, err := w.Write(buf)
	require.NoError(t, err)
	buf[0] = 'X'
	_, _ = w.Write([]byte("second\n"))
	assert.Equal(t, 2, w.Len())

	var out bytes.Buffer
	require.NoError(t, w.Flush(&out))
	assert.Equal(t, "first\nsecond\n", out.String())
	assert.Zero(t, w.Len())

	out.Reset()
	require.NoError(t, w.Flush(&out))
	assert.Empty(t, out.String())
}

func TestDeferredWriter_ZerologConsole(t *testing.T) {
	var w DeferredWriter
	logger := zerolog.New(&w)
	logger.Info().Str("component", "syncloop").Msg("tick failed")
	logger.Warn().Msg("peer offline")

	var out bytes.Buffer
	require.NoError(t, w.Flush(zerolog.ConsoleWriter{Out: &out, NoColor: true}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "tick failed")
	assert.Contains(t, lines[0], "component=syncloop")
	assert.Contains(t, lines[1], "peer offline")
}

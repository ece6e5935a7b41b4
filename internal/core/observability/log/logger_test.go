package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelSilent,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")
	logger, err := NewWithOptions(Options{Level: LevelInfo, OutputPaths: []string{out}})
	require.NoError(t, err)

	child := logger.With(String("component", "engine"))
	child.Debug("hidden")
	child.Info("tile attached", Int("x", 3), Int("z", -1), Error(errors.New("boom")))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"component":"engine"`)
	assert.Contains(t, text, `"x":3`)
	assert.Contains(t, text, `"error":"boom"`)
	assert.NotContains(t, text, "hidden")
}

func TestEnabledFollowsLevel(t *testing.T) {
	logger, err := NewWithOptions(Options{Level: LevelWarn, OutputPaths: []string{filepath.Join(t.TempDir(), "l")}})
	require.NoError(t, err)

	assert.False(t, logger.Enabled(LevelInfo))
	assert.True(t, logger.Enabled(LevelError))

	logger.SetLevel(LevelDebug)
	assert.True(t, logger.Enabled(LevelDebug))
	assert.False(t, logger.Enabled(LevelSilent))
}

func TestNopLogger(t *testing.T) {
	nop := NewNop()
	assert.False(t, nop.Enabled(LevelError))
	nop.With(String("k", "v")).Error("dropped")
}

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
	assert.Equal(t, "ERROR", ERROR.String())
}

func TestLogger_WritesFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "logging_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	l, err := NewLogger("unit", Options{Level: DEBUG, Dir: dir})
	require.NoError(t, err)
	l.Info("chunk %s ready", "0|0")
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "unit_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk 0|0 ready")
}

func TestManager_ReusesLoggers(t *testing.T) {
	lm := NewLoggerManager(Options{Level: INFO})
	defer lm.CloseAll()

	a, err := lm.GetLogger("pipeline")
	require.NoError(t, err)
	b, err := lm.GetLogger("pipeline")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, []string{"pipeline"}, lm.ListComponents())
	assert.NoError(t, lm.SetLogLevel("pipeline", DEBUG))
	assert.Error(t, lm.SetLogLevel("missing", DEBUG))
}

func TestDefaultLogger_NopBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("no logger yet %d", 1)
		L().Debug("structured")
	})
}

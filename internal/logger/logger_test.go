package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	log, err := New("production", dir)
	require.NoError(t, err)

	log.Info("payout committed")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "tutormarket-api.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "payout committed")
}

func TestNewStdoutOnly(t *testing.T) {
	log, err := New("development", "")
	require.NoError(t, err)
	assert.NotNil(t, log)
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("solireyd", " test ", Options{Output: &buf})
	defer closer.Close()

	logger.Info("market call", "module", "escrow")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "market call", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "solireyd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "escrow", line["module"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("solireyd", "", Options{Output: &buf, Level: slog.LevelWarn})
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept")
	require.Equal(t, 1, strings.Count(buf.String(), "\n"))
	require.Contains(t, buf.String(), "kept")
}

func TestSetupMirrorsToRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "solireyd.log")
	logger, closer := SetupWithOptions("solireyd", "", Options{Output: &buf, File: path})
	logger.Info("persisted")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "persisted")
}

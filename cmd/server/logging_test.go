package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCappedLog_KeepsNewestWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reelwatch.log")
	w, err := openCappedLog(path, 200, 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	for i := 0; i < 40; i++ {
		_, err := fmt.Fprintf(w, "line %02d\n", i)
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.LessOrEqual(t, len(data), 200)
	require.True(t, strings.HasSuffix(string(data), "line 39\n"))
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		require.Regexp(t, `^line \d\d$`, line)
	}
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	require.Equal(t, slog.LevelError, parseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLogLevel(""))
	require.Equal(t, slog.LevelInfo, parseLogLevel("chatty"))
}

package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	want := []string{"serve", "index", "ask", "logs", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "subcommand %q not registered", name)
	}
	require.Equal(t, "evapo", rootCmd.Use)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "bogus", want: slog.LevelInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLevel(tc.in), "level %q", tc.in)
	}
}

func TestTruncateLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateLine("short"))

	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := truncateLine(string(long))
	assert.Len(t, []rune(got), 97)
}

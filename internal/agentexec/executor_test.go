package agentexec

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func echoSpec() KindSpec {
	return KindSpec{
		Kind:   "echo",
		Binary: "sh",
		BuildArgs: func(model string) []string {
			return []string{"-c", "cat"}
		},
		Extractor: ExtractRaw,
	}
}

func TestExecutorRunEchoesStdin(t *testing.T) {
	e := New(echoSpec(), t.TempDir())
	res, err := e.Run(context.Background(), "hello world", time.Second)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "hello world", res.Output)
	require.Equal(t, 0, res.ExitCode)
	require.False(t, res.TimedOut)
}

func TestExecutorRunTimesOut(t *testing.T) {
	spec := KindSpec{
		Kind:   "slow",
		Binary: "sh",
		BuildArgs: func(model string) []string {
			return []string{"-c", "sleep 2"}
		},
		Extractor: ExtractRaw,
	}
	e := New(spec, t.TempDir())
	res, err := e.Run(context.Background(), "", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.Equal(t, 124, res.ExitCode)
}

func TestExecutorCapturesDebugFiles(t *testing.T) {
	dir := t.TempDir()
	e := New(echoSpec(), t.TempDir())
	e.DebugDir = dir

	_, err := e.Run(context.Background(), "debug me", time.Second)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 3, "expected prompt, raw, and response files")
}

func TestExecutorNonZeroExit(t *testing.T) {
	spec := KindSpec{
		Kind:   "fail",
		Binary: "sh",
		BuildArgs: func(model string) []string {
			return []string{"-c", "exit 7"}
		},
		Extractor: ExtractRaw,
	}
	e := New(spec, t.TempDir())
	res, err := e.Run(context.Background(), "", time.Second)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 7, res.ExitCode)
}

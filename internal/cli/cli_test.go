package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// withTestDir creates a temp directory, chdirs into it, and initializes it
// as a loopctl project using the real init command.
func withTestDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	origWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origWd) })

	require.NoError(t, runInit(nil, nil))
	return dir
}

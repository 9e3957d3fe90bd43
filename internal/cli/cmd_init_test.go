package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/config"
)

func TestInitCreatesStateDir(t *testing.T) {
	dir := withTestDir(t)

	require.True(t, config.IsInitialized(dir))
	_, err := os.Stat(dir + "/" + config.StateDirName + "/config.yaml")
	require.NoError(t, err)
}

func TestInitIsIdempotent(t *testing.T) {
	withTestDir(t)

	require.NoError(t, runInit(nil, nil))
}

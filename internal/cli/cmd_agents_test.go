package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/config"
)

func TestAgentsListsEnabledKinds(t *testing.T) {
	withTestDir(t)

	cmd := newAgentsCmd()
	require.NoError(t, cmd.Execute())
}

func TestAgentsReportsNoneEnabled(t *testing.T) {
	dir := withTestDir(t)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	for kind, ac := range cfg.Agents {
		ac.Enabled = false
		cfg.Agents[kind] = ac
	}

	kinds, _ := agentKindsAndCooldowns(cfg)
	require.Empty(t, kinds)
}

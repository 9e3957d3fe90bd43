package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loopctl/loopctl/internal/config"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Show agent pool health",
		Args:  cobra.NoArgs,
		RunE:  runAgents,
	}
}

func runAgents(cmd *cobra.Command, args []string) error {
	dir, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	backend, err := openBackend(dir, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = backend.Close() }()

	kinds, cooldowns := agentKindsAndCooldowns(cfg)
	if len(kinds) == 0 {
		fmt.Println(icon("⚠️", "!") + " no agent kinds are enabled")
		return nil
	}

	states, err := backend.LoadAgentPool("default")
	if err != nil {
		fmt.Println(icon("ℹ️", "[i]") + " no recorded agent pool state yet; showing defaults")
	}
	byKind := make(map[string]int)
	for i, s := range states {
		byKind[s.Kind] = i
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "KIND\tSTATUS\tSUCCESS RATE\tCONSEC FAILURES\tCOOLDOWN\n")
	for _, kind := range kinds {
		if i, ok := byKind[kind]; ok {
			s := states[i]
			fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%d\t%s\n", s.Kind, s.Status, s.SuccessRate*100, s.ConsecutiveFailures, cooldowns[kind])
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", kind, "unknown", "-", "-", cooldowns[kind])
	}
	_ = w.Flush()
	return nil
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loopctl/loopctl/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize loopctl in the current directory",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	if config.IsInitialized(dir) {
		fmt.Println(icon("✅", "[ok]") + " loopctl is already initialized here")
		return nil
	}

	stateDir := dir + "/" + config.StateDirName
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", stateDir, err)
	}

	cfg := config.Default()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(stateDir+"/config.yaml", out, 0o644); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	fmt.Println(icon("✅", "[ok]") + " initialized loopctl in " + stateDir)
	return nil
}

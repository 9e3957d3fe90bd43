// Package cli implements the loopctl command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
	jsonOut bool
	plain   bool // disable emoji output for terminal compatibility
)

const (
	groupCore    = "core"
	groupInspect = "inspect"
	groupConfig  = "config"
)

// rootCmd is the base command when loopctl is called without any subcommand.
var rootCmd = &cobra.Command{
	Use:   "loopctl",
	Short: "Autonomous Planner/Worker/Judge orchestration engine",
	Long: `loopctl drives a Plan -> Work -> Judge cycle against a goal until the
Judge declares the work complete, aborts it, or the cycle budget runs out.

Quick start:
  loopctl init                 Initialize loopctl in the current project
  loopctl run "fix the bug"    Start a session and run it to completion
  loopctl status                Show the current session and task state
  loopctl agents                Show agent pool health`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "plain output without emoji")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Core Commands:"},
		&cobra.Group{ID: groupInspect, Title: "Inspection:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)

	addCmd(newInitCmd(), groupCore)
	addCmd(newRunCmd(), groupCore)
	addCmd(newResumeCmd(), groupCore)
	addCmd(newPauseCmd(), groupCore)

	addCmd(newStatusCmd(), groupInspect)
	addCmd(newAgentsCmd(), groupInspect)
	addCmd(newWatchCmd(), groupInspect)

	addCmd(newConfigCmd(), groupConfig)
	addCmd(newServeCmd(), groupConfig)
}

func addCmd(cmd *cobra.Command, groupID string) {
	cmd.GroupID = groupID
	rootCmd.AddCommand(cmd)
}

func icon(emoji, plainText string) string {
	if plain {
		return plainText
	}
	return emoji
}

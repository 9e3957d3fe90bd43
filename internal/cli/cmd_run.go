package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/events"
	"github.com/loopctl/loopctl/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Start a session and run the Planner/Worker/Judge cycle to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().String("session", "", "session ID (default: generated from the current time)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := args[0]

	dir, err := projectRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	bus := events.NewMemoryBus()
	defer bus.Close()

	deps, cleanup, err := buildDeps(dir, cfg, bus)
	if err != nil {
		return err
	}
	defer cleanup()

	o := orchestrator.New(deps)

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().Unix())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n" + icon("⚠️", "!") + " interrupt received, finishing the current cycle...")
		cancel()
	}()

	sess, err := o.Start(ctx, sessionID, goal, dir)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Printf("%s session %s on branch %s\n", icon("🚀", "->"), sess.SessionID, sess.Branch)

	result, err := o.Run(ctx, sess)
	if err != nil {
		return fmt.Errorf("run session: %w", err)
	}

	fmt.Printf("%s %s after %d cycle(s): %d completed, %d failed (%s)\n",
		icon("🏁", "[done]"), result.Status, result.TotalCycles,
		result.TasksCompleted, result.TasksFailed, result.Duration.Round(time.Second))
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	return nil
}

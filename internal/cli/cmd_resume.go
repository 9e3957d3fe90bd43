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

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a paused session and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
}

func runResume(cmd *cobra.Command, args []string) error {
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

	sess, err := deps.Store.LoadSession(args[0])
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.Status.IsPaused() {
		return fmt.Errorf("session %s is not paused (status %s)", sess.SessionID, sess.Status)
	}

	if err := deps.Git.CreateOrSwitchBranch(sess.Branch, sess.BaseBranch); err != nil {
		return fmt.Errorf("switch to session branch: %w", err)
	}
	sess.Resume()
	if err := deps.Store.SaveSession(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	o := orchestrator.New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n" + icon("⚠️", "!") + " interrupt received, finishing the current cycle...")
		cancel()
	}()

	fmt.Printf("%s resumed session %s on branch %s\n", icon("▶️", "->"), sess.SessionID, sess.Branch)

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

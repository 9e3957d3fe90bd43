package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/session"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <session-id>",
		Short: "Pause a session; resume it later with 'loopctl resume'",
		Args:  cobra.ExactArgs(1),
		RunE:  runPause,
	}
}

func runPause(cmd *cobra.Command, args []string) error {
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

	sess, err := backend.LoadSession(args[0])
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Status.IsTerminal() {
		return fmt.Errorf("session %s already finished (%s)", sess.SessionID, sess.Status)
	}

	sess.MarkPaused("paused by operator", session.StatusPausedManual)
	if err := backend.SaveSession(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	fmt.Printf("%s session %s paused\n", icon("⏸️", "[paused]"), sess.SessionID)
	fmt.Printf("   resume with: loopctl resume %s\n", sess.SessionID)
	return nil
}

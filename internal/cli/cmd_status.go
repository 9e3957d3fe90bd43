package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/task"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show the current session and task state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	if len(args) == 1 {
		sess, err := backend.LoadSession(args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		fmt.Printf("%s session %s: %s (cycle %d/%d, branch %s)\n",
			icon("📋", "[session]"), sess.SessionID, sess.Status, sess.CurrentCycle, sess.MaxCycles, sess.Branch)
		if sess.Pause != nil {
			fmt.Printf("  paused: %s (%s)\n", sess.Pause.Reason, formatTimeAgo(sess.Pause.PausedAt))
		}
	}

	tasks, err := backend.LoadAllTasks()
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	pending, inProgress, completed, failed := groupByStatus(tasks)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTATUS\tTITLE\tAGENT\tCREATED\n")
	for _, t := range inProgress {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Title, 40), t.AssignedAgent, formatTimeAgo(t.CreatedAt))
	}
	for _, t := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Title, 40), "-", formatTimeAgo(t.CreatedAt))
	}
	for _, t := range failed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Title, 40), t.AssignedAgent, formatTimeAgo(t.CreatedAt))
	}
	for _, t := range completed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Title, 40), t.AssignedAgent, formatTimeAgo(t.CreatedAt))
	}
	_ = w.Flush()

	fmt.Printf("\n%d pending, %d in progress, %d completed, %d failed\n",
		len(pending), len(inProgress), len(completed), len(failed))
	return nil
}

func groupByStatus(tasks []*task.Task) (pending, inProgress, completed, failed []*task.Task) {
	for _, t := range tasks {
		switch t.Status {
		case task.StatusPending:
			pending = append(pending, t)
		case task.StatusInProgress:
			inProgress = append(inProgress, t)
		case task.StatusCompleted:
			completed = append(completed, t)
		case task.StatusFailed:
			failed = append(failed, t)
		}
	}
	return
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

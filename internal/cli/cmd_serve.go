package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/events"
	"github.com/loopctl/loopctl/internal/orchestrator"
	"github.com/loopctl/loopctl/internal/wsbroadcast"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <goal>",
		Short: "Run a session while streaming its events over a websocket",
		Args:  cobra.ExactArgs(1),
		RunE:  runServe,
	}
	cmd.Flags().String("session", "", "session ID (default: generated from the current time)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	goal := args[0]

	dir, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Serve.Enabled {
		cfg.Serve.Enabled = true
	}
	addr := cfg.Serve.Addr
	if addr == "" {
		addr = ":7777"
	}

	bus := events.NewMemoryBus()
	defer bus.Close()

	deps, cleanup, err := buildDeps(dir, cfg, bus)
	if err != nil {
		return err
	}
	defer cleanup()

	ws := wsbroadcast.New(bus, nil)
	stopBroadcast := make(chan struct{})
	defer close(stopBroadcast)
	go ws.Run(stopBroadcast)

	httpSrv := &http.Server{Addr: addr, Handler: ws}
	go func() {
		fmt.Printf("%s streaming events on ws://%s\n", icon("📡", "[serve]"), addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		_ = httpSrv.Close()
	}()

	o := orchestrator.New(deps)
	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().Unix())
	}

	sess, err := o.Start(ctx, sessionID, goal, dir)
	if err != nil {
		_ = httpSrv.Close()
		return fmt.Errorf("start session: %w", err)
	}

	result, err := o.Run(ctx, sess)
	_ = httpSrv.Close()
	if err != nil {
		return fmt.Errorf("run session: %w", err)
	}

	fmt.Printf("%s %s after %d cycle(s)\n", icon("🏁", "[done]"), result.Status, result.TotalCycles)
	return nil
}

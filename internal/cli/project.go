package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/events"
	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/orchestrator"
	"github.com/loopctl/loopctl/internal/storage"
	"github.com/loopctl/loopctl/internal/task"
	"github.com/loopctl/loopctl/internal/vcs"
	"github.com/loopctl/loopctl/internal/wakeup"
)

// projectRoot resolves the project directory, requiring it to already be
// initialized.
func projectRoot() (string, error) {
	dir, err := config.FindProjectRoot()
	if err != nil {
		return "", err
	}
	if err := config.RequireInit(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// openBackend opens the configured storage backend rooted at dir.
func openBackend(dir string, cfg config.Config) (storage.Backend, error) {
	snapshotDir := dir + "/" + config.StateDirName + "/snapshots"
	switch cfg.Storage.Mode {
	case config.StorageModePostgres:
		return storage.OpenPostgres(context.Background(), cfg.Storage.PostgresDSN, snapshotDir)
	default:
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = dir + "/" + config.StateDirName + "/loopctl.db"
		} else {
			path = dir + "/" + path
		}
		return storage.OpenSQLite(path, snapshotDir)
	}
}

// agentKindsAndCooldowns splits the configured agent map into the ordered
// kind list and per-kind cooldown map the Agent Pool expects.
func agentKindsAndCooldowns(cfg config.Config) ([]string, map[string]time.Duration) {
	var kinds []string
	cooldowns := make(map[string]time.Duration)
	for kind, ac := range cfg.Agents {
		if !ac.Enabled {
			continue
		}
		kinds = append(kinds, kind)
		cooldowns[kind] = time.Duration(ac.CooldownMinutes * float64(time.Minute))
	}
	return kinds, cooldowns
}

// buildDeps wires every component the Orchestrator needs for dir, using the
// Event Bus bus (a caller-supplied bus lets `run` and `serve` share one).
func buildDeps(dir string, cfg config.Config, bus events.Publisher) (orchestrator.Deps, func(), error) {
	backend, err := openBackend(dir, cfg)
	if err != nil {
		return orchestrator.Deps{}, nil, fmt.Errorf("open storage: %w", err)
	}

	kinds, cooldowns := agentKindsAndCooldowns(cfg)
	pool := agentpool.New(kinds, cooldowns)
	available := execmgr.DetectAvailable(pool, kinds)
	if len(available) == 0 {
		_ = backend.Close()
		return orchestrator.Deps{}, nil, fmt.Errorf("no agent kind available (checked PATH): %v", kinds)
	}

	mgr := execmgr.New(pool, kinds, dir, dir+"/"+config.StateDirName+"/prompts")
	for kind, ac := range cfg.Agents {
		if ac.Model != "" {
			mgr.SetModel(kind, ac.Model)
		}
	}

	wk := wakeup.New(bus, cfg.Cycle.WakeupThreshold)
	vcsCfg := vcs.DefaultConfig()
	if cfg.VCS.BranchPrefix != "" {
		vcsCfg.BranchPrefix = cfg.VCS.BranchPrefix
	}
	if cfg.VCS.CommitPrefix != "" {
		vcsCfg.CommitPrefix = cfg.VCS.CommitPrefix
	}
	g := vcs.New(dir, vcsCfg)

	deps := orchestrator.Deps{
		Store:  backend,
		Pool:   pool,
		Exec:   mgr,
		Git:    g,
		Bus:    bus,
		Wakeup: wk,
		IDGen:  task.NewGenerator(0),
		Cfg:    cfg,
	}

	cleanup := func() {
		wk.Close()
		_ = backend.Close()
	}
	return deps, cleanup, nil
}

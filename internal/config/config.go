// Package config loads engine configuration from <project>/.loopctl/config.yaml,
// with built-in defaults and limited environment variable overrides (prefix
// LOOPCTL_, see Load).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// StorageMode selects which Backend the engine constructs.
type StorageMode string

const (
	StorageModeSQLite   StorageMode = "sqlite"
	StorageModePostgres StorageMode = "postgres"
)

// StorageConfig configures the Task Store / Session State backend.
type StorageConfig struct {
	Mode          StorageMode `yaml:"mode"`
	SQLitePath    string      `yaml:"sqlite_path"`
	PostgresDSN   string      `yaml:"postgres_dsn,omitempty"`
	RetentionDays int         `yaml:"retention_days"`
}

// AgentConfig configures one agent kind.
type AgentConfig struct {
	Model           string        `yaml:"model,omitempty"`
	CooldownMinutes float64       `yaml:"cooldown_minutes"`
	Enabled         bool          `yaml:"enabled"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
}

// CycleConfig configures the Orchestrator's main loop.
type CycleConfig struct {
	MaxCycles       int `yaml:"max_cycles"`
	WakeupThreshold int `yaml:"wakeup_threshold"`
	MaxWorkers      int `yaml:"max_workers"`
	SubPlannerMax   int `yaml:"sub_planner_max"`
	PlannerTaskCap  int `yaml:"planner_task_cap"`
}

// VCSConfig configures the git wrapper.
type VCSConfig struct {
	BranchPrefix string `yaml:"branch_prefix"`
	CommitPrefix string `yaml:"commit_prefix"`
	AutoPush     bool   `yaml:"auto_push"`
	Remote       string `yaml:"remote"`
}

// HostingConfig configures optional post-completion PR hand-off.
type HostingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider,omitempty"` // "auto" | "github" | "gitlab"
	BaseURL     string `yaml:"base_url,omitempty"` // self-hosted GitHub/GitLab instance
	TokenEnvVar string `yaml:"token_env_var,omitempty"`
	BaseRef     string `yaml:"base_ref,omitempty"`
	Draft       bool   `yaml:"draft"`
}

// ServeConfig configures the optional websocket event-stream server.
type ServeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the top-level engine configuration.
type Config struct {
	Goal    string                 `yaml:"goal,omitempty"`
	Storage StorageConfig          `yaml:"storage"`
	Agents  map[string]AgentConfig `yaml:"agents"`
	Cycle   CycleConfig            `yaml:"cycle"`
	VCS     VCSConfig              `yaml:"vcs"`
	Hosting HostingConfig          `yaml:"hosting"`
	Serve   ServeConfig            `yaml:"serve"`
}

// StateDirName is the directory under the project root where all engine
// state (database, JSON snapshots, debug prompt captures) lives.
const StateDirName = ".loopctl"

// Default returns the engine's built-in defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Mode:          StorageModeSQLite,
			SQLitePath:    StateDirName + "/loopctl.db",
			RetentionDays: 30,
		},
		Agents: map[string]AgentConfig{
			"claude": {CooldownMinutes: 45, Enabled: true},
			"codex":  {CooldownMinutes: 30, Enabled: true},
			"gemini": {CooldownMinutes: 30, Enabled: true},
		},
		Cycle: CycleConfig{
			MaxCycles:       20,
			WakeupThreshold: 3,
			MaxWorkers:      4,
			SubPlannerMax:   5,
			PlannerTaskCap:  10,
		},
		VCS: VCSConfig{
			BranchPrefix: "loopctl/",
			CommitPrefix: "[loopctl]",
			Remote:       "origin",
		},
	}
}

// Load reads configuration from projectPath/.loopctl/config.yaml, falling
// back to defaults for anything unset. LOOPCTL_-prefixed environment
// variables (e.g. LOOPCTL_GOAL) override only top-level keys that the file
// sets; nested keys such as cycle.max_cycles are not read from the
// environment, and when the file does not exist the defaults are returned
// without consulting the environment.
func Load(projectPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(projectPath + "/" + StateDirName)
	v.SetEnvPrefix("LOOPCTL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("config: read %s/config.yaml: %w", StateDirName, err)
		}
		return cfg, nil
	}

	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// IsInitialized reports whether dir contains a .loopctl state directory.
func IsInitialized(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, StateDirName))
	return err == nil && info.IsDir()
}

// RequireInit returns an error if dir has not been initialized.
func RequireInit(dir string) error {
	if !IsInitialized(dir) {
		return fmt.Errorf("not a loopctl project (no %s directory); run 'loopctl init' first", StateDirName)
	}
	return nil
}

// FindProjectRoot walks up from the current directory looking for a
// .loopctl state directory, falling back to the current directory if none
// is found.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	dir := cwd
	for {
		if IsInitialized(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd, nil
}

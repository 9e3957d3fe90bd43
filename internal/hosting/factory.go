package hosting

import (
	"fmt"
	"os/exec"
	"strings"
)

// Config holds the settings needed to construct a Provider.
type Config struct {
	// Provider selects "github", "gitlab", or "auto" (detect from the git
	// remote URL).
	Provider string

	// BaseURL overrides the API host for self-hosted GitHub/GitLab.
	BaseURL string

	// TokenEnvVar overrides the default token environment variable name.
	// Default: GITHUB_TOKEN for GitHub, GITLAB_TOKEN for GitLab.
	TokenEnvVar string
}

// NewProviderFunc constructs a Provider for the repo at workDir.
type NewProviderFunc func(workDir string, cfg Config) (Provider, error)

var providerConstructors = map[ProviderType]NewProviderFunc{}

// RegisterProvider registers a provider constructor. Called from init() in
// the github and gitlab subpackages.
func RegisterProvider(providerType ProviderType, constructor NewProviderFunc) {
	providerConstructors[providerType] = constructor
}

// NewProvider builds a Provider for the repository at workDir. If
// cfg.Provider is "auto" or empty, the provider is detected from the
// origin remote URL.
func NewProvider(workDir string, cfg Config) (Provider, error) {
	providerType, err := resolveProviderType(workDir, cfg)
	if err != nil {
		return nil, err
	}

	constructor, ok := providerConstructors[providerType]
	if !ok {
		return nil, fmt.Errorf("no hosting provider registered for %q (registered: %v)", providerType, registeredProviders())
	}

	return constructor(workDir, cfg)
}

func resolveProviderType(workDir string, cfg Config) (ProviderType, error) {
	if cfg.Provider != "" && cfg.Provider != "auto" {
		pt := ProviderType(cfg.Provider)
		if pt != ProviderGitHub && pt != ProviderGitLab {
			return "", fmt.Errorf("unknown hosting provider %q (supported: github, gitlab)", cfg.Provider)
		}
		return pt, nil
	}

	remoteURL, err := getRemoteURL(workDir)
	if err != nil {
		return "", fmt.Errorf("detect hosting provider: %w", err)
	}

	detected := DetectProvider(remoteURL)
	if detected == ProviderUnknown {
		return "", fmt.Errorf("cannot detect hosting provider from remote URL %q (set hosting.provider explicitly)", remoteURL)
	}
	return detected, nil
}

func getRemoteURL(workDir string) (string, error) {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get remote URL: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func registeredProviders() []ProviderType {
	var providers []ProviderType
	for pt := range providerConstructors {
		providers = append(providers, pt)
	}
	return providers
}

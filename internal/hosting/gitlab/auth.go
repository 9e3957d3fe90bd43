package gitlab

import (
	"fmt"
	"os"

	"github.com/loopctl/loopctl/internal/hosting"
)

func resolveToken(cfg hosting.Config) (string, error) {
	if cfg.TokenEnvVar != "" {
		if token := os.Getenv(cfg.TokenEnvVar); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("hosting: %s is not set", cfg.TokenEnvVar)
	}
	if token := os.Getenv("GITLAB_TOKEN"); token != "" {
		return token, nil
	}
	if token := os.Getenv("GITLAB_PRIVATE_TOKEN"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("hosting: GITLAB_TOKEN or GITLAB_PRIVATE_TOKEN is not set")
}

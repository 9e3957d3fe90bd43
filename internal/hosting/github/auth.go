package github

import (
	"fmt"
	"os"

	"github.com/loopctl/loopctl/internal/hosting"
)

func resolveToken(cfg hosting.Config) (string, error) {
	envVar := cfg.TokenEnvVar
	if envVar == "" {
		envVar = "GITHUB_TOKEN"
	}
	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf("hosting: %s is not set", envVar)
	}
	return token, nil
}

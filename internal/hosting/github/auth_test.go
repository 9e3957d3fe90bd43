package github

import (
	"testing"

	"github.com/loopctl/loopctl/internal/hosting"
)

func TestResolveToken(t *testing.T) {
	// Cannot use t.Parallel() -- t.Setenv modifies process environment.

	tests := []struct {
		name      string
		cfg       hosting.Config
		envKey    string
		envValue  string
		wantToken string
		wantErr   bool
	}{
		{
			name:      "GITHUB_TOKEN set",
			cfg:       hosting.Config{},
			envKey:    "GITHUB_TOKEN",
			envValue:  "ghp_test123",
			wantToken: "ghp_test123",
		},
		{
			name:    "GITHUB_TOKEN not set returns error",
			cfg:     hosting.Config{},
			wantErr: true,
		},
		{
			name:      "custom env var overrides default",
			cfg:       hosting.Config{TokenEnvVar: "MY_GH_TOKEN"},
			envKey:    "MY_GH_TOKEN",
			envValue:  "custom_token_value",
			wantToken: "custom_token_value",
		},
		{
			name:    "custom env var not set returns error",
			cfg:     hosting.Config{TokenEnvVar: "MY_GH_TOKEN"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", "")
			t.Setenv("MY_GH_TOKEN", "")
			if tt.envKey != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}

			token, err := resolveToken(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && token != tt.wantToken {
				t.Errorf("resolveToken() = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

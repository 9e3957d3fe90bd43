package hosting

import "testing"

func TestResolveProviderType(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantType ProviderType
		wantErr  bool
	}{
		{name: "explicit github", provider: "github", wantType: ProviderGitHub},
		{name: "explicit gitlab", provider: "gitlab", wantType: ProviderGitLab},
		{name: "unknown provider returns error", provider: "bitbucket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Provider: tt.provider}
			got, err := resolveProviderType("", cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveProviderType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.wantType {
				t.Errorf("resolveProviderType() = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestResolveProviderTypeAutoRequiresGitRepo(t *testing.T) {
	cfg := Config{Provider: "auto"}
	_, err := resolveProviderType("/nonexistent/path", cfg)
	if err == nil {
		t.Fatal("resolveProviderType() with auto and invalid workDir should return error")
	}
}

func TestNewProviderUnregisteredProvider(t *testing.T) {
	cfg := Config{Provider: "bitbucket"}
	_, err := NewProvider("", cfg)
	if err == nil {
		t.Fatal("NewProvider() with unknown provider should return error")
	}
}

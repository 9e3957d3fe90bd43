// Package hosting opens a pull request on the session branch once a run
// completes. It is additive: a failure here never changes the session
// result, only logs a warning.
package hosting

import "context"

// ProviderType identifies which hosting provider is in use.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderUnknown ProviderType = "unknown"
)

// Provider is the minimal surface the hand-off needs from a git hosting
// service. Implementations exist for GitHub (go-github) and GitLab
// (go-gitlab).
type Provider interface {
	CreatePR(ctx context.Context, opts PRCreateOptions) (*PR, error)
	CheckAuth(ctx context.Context) error
	Name() ProviderType
	OwnerRepo() (string, string)
}

// PR represents a created pull request / merge request.
type PR struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	HTMLURL    string `json:"html_url"`
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
	State      string `json:"state"`
}

// PRCreateOptions describes a pull request / merge request to create.
type PRCreateOptions struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"` // source branch
	Base  string `json:"base"` // target branch
	Draft bool   `json:"draft"`
}

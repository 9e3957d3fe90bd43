// Package gitlab implements hosting.Provider on top of go-gitlab, used for
// the optional post-completion merge request hand-off.
package gitlab

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/loopctl/loopctl/internal/hosting"
)

var _ hosting.Provider = (*Provider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitLab, newProvider)
}

// Provider implements hosting.Provider using the go-gitlab library.
type Provider struct {
	client    *gogitlab.Client
	projectID string // URL-encoded "owner/repo" path used as project identifier
	owner     string
	repo      string
}

func newProvider(workDir string, cfg hosting.Config) (hosting.Provider, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("get remote URL: %w", err)
	}

	remoteURL := strings.TrimSpace(string(output))
	owner, repo := hosting.ParseOwnerRepo(remoteURL)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("could not parse owner/repo from remote URL: %s", remoteURL)
	}

	var client *gogitlab.Client
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		client, err = gogitlab.NewClient(token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &Provider{client: client, projectID: owner + "/" + repo, owner: owner, repo: repo}, nil
}

// Name returns the provider type.
func (p *Provider) Name() hosting.ProviderType { return hosting.ProviderGitLab }

// OwnerRepo returns the repository owner and name. Owner may contain
// nested group segments.
func (p *Provider) OwnerRepo() (string, string) { return p.owner, p.repo }

// CheckAuth validates the token by fetching the authenticated user.
func (p *Provider) CheckAuth(ctx context.Context) error {
	_, _, err := p.client.Users.CurrentUser(gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// CreatePR opens a merge request from opts.Head into opts.Base.
func (p *Provider) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	createOpts := &gogitlab.CreateMergeRequestOptions{
		Title:        gogitlab.Ptr(opts.Title),
		Description:  gogitlab.Ptr(opts.Body),
		SourceBranch: gogitlab.Ptr(opts.Head),
		TargetBranch: gogitlab.Ptr(opts.Base),
	}

	mr, _, err := p.client.MergeRequests.CreateMergeRequest(p.projectID, createOpts, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create MR: %w", err)
	}

	state := mr.State
	if state == "opened" {
		state = "open"
	}

	return &hosting.PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		HTMLURL:    mr.WebURL,
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		State:      state,
	}, nil
}

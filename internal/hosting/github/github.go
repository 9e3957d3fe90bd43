// Package github implements hosting.Provider on top of go-github, used for
// the optional post-completion PR hand-off.
package github

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/loopctl/loopctl/internal/hosting"
)

var _ hosting.Provider = (*Provider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitHub, newProvider)
}

// Provider implements hosting.Provider using the go-github library.
type Provider struct {
	client *gogithub.Client
	owner  string
	repo   string
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

	httpClient := &http.Client{Transport: &oauth2Transport{token: token}}
	client := gogithub.NewClient(httpClient)

	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
		client.UploadURL, parseErr = client.UploadURL.Parse(baseURL + "/api/uploads/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", cfg.BaseURL, parseErr)
		}
	}

	return &Provider{client: client, owner: owner, repo: repo}, nil
}

type oauth2Transport struct {
	token string
	base  http.RoundTripper
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// Name returns the provider type.
func (p *Provider) Name() hosting.ProviderType { return hosting.ProviderGitHub }

// OwnerRepo returns the repository owner and name.
func (p *Provider) OwnerRepo() (string, string) { return p.owner, p.repo }

// CheckAuth validates the token by fetching the authenticated user.
func (p *Provider) CheckAuth(ctx context.Context) error {
	_, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// CreatePR opens a pull request from opts.Head into opts.Base.
func (p *Provider) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	newPR := &gogithub.NewPullRequest{
		Title: gogithub.Ptr(opts.Title),
		Body:  gogithub.Ptr(opts.Body),
		Head:  gogithub.Ptr(opts.Head),
		Base:  gogithub.Ptr(opts.Base),
		Draft: gogithub.Ptr(opts.Draft),
	}

	created, _, err := p.client.PullRequests.Create(ctx, p.owner, p.repo, newPR)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}

	return &hosting.PR{
		Number:     created.GetNumber(),
		Title:      created.GetTitle(),
		HTMLURL:    created.GetHTMLURL(),
		HeadBranch: created.GetHead().GetRef(),
		BaseBranch: created.GetBase().GetRef(),
		State:      created.GetState(),
	}, nil
}

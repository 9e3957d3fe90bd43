package hosting

import (
	"regexp"
	"strings"
)

// DetectProvider determines the hosting provider from a git remote URL.
//
// Supported formats:
//   - git@github.com:owner/repo.git
//   - https://github.com/owner/repo.git
//   - git@gitlab.com:owner/repo.git
//   - https://gitlab.company.com/org/repo.git (self-hosted GitLab)
func DetectProvider(remoteURL string) ProviderType {
	url := strings.ToLower(strings.TrimSpace(remoteURL))

	if isGitHub(url) {
		return ProviderGitHub
	}
	if isGitLab(url) {
		return ProviderGitLab
	}
	return ProviderUnknown
}

var githubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[:/]`),
	regexp.MustCompile(`github\.[a-z0-9-]+\.[a-z]+[:/]`),
}

func isGitHub(url string) bool {
	for _, p := range githubPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

var gitlabPatterns = []*regexp.Regexp{
	regexp.MustCompile(`gitlab\.com[:/]`),
	regexp.MustCompile(`gitlab\.[a-z0-9-]+\.[a-z]+[:/]`),
}

func isGitLab(url string) bool {
	for _, p := range gitlabPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// ParseOwnerRepo extracts owner and repo from a git remote URL. Handles SSH
// (git@host:owner/repo), ssh:// with a port, and https:// forms. For GitLab
// nested groups, owner may contain slashes.
func ParseOwnerRepo(remoteURL string) (owner, repo string) {
	raw := strings.TrimSpace(remoteURL)
	raw = strings.TrimSuffix(raw, ".git")

	switch {
	case strings.HasPrefix(raw, "ssh://"):
		raw = strings.TrimPrefix(raw, "ssh://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = strings.TrimLeft(raw[idx+1:], "/")
		}
	case strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://"):
		raw = strings.TrimPrefix(raw, "https://")
		raw = strings.TrimPrefix(raw, "http://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = raw[idx+1:]
		}
	default:
		if idx := strings.Index(raw, ":"); idx != -1 {
			raw = raw[idx+1:]
		}
	}

	parts := strings.Split(raw, "/")
	if len(parts) < 2 {
		return raw, ""
	}
	repo = parts[len(parts)-1]
	owner = strings.Join(parts[:len(parts)-1], "/")
	return owner, repo
}

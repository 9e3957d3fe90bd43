package vcs

import "github.com/bmatcuk/doublestar/v4"

// MatchesAny reports whether path matches any of the glob patterns a task
// declared in its files list (e.g. "internal/**/*.go"). Invalid patterns
// never match rather than erroring, since patterns originate from
// untrusted Planner/agent output.
func MatchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, path)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// FilterChanged returns the subset of changed that matches at least one of
// patterns, preserving order. With no patterns it returns changed as is.
func FilterChanged(patterns, changed []string) []string {
	if len(patterns) == 0 {
		return changed
	}
	var out []string
	for _, c := range changed {
		if MatchesAny(patterns, c) {
			out = append(out, c)
		}
	}
	return out
}

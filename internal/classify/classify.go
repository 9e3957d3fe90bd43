// Package classify maps raw agent subprocess output onto a fixed error
// taxonomy and a per-category recovery policy.
package classify

import (
	"strings"
	"time"
)

// Category is one of the fixed error taxonomy buckets.
type Category string

const (
	CategoryRateLimit     Category = "rate_limit"
	CategoryTimeout       Category = "timeout"
	CategoryCrash         Category = "crash"
	CategoryInvalidOutput Category = "invalid_output"
	CategoryGitConflict   Category = "git_conflict"
	CategoryPermission    Category = "permission"
	CategoryNetwork       Category = "network"
	CategoryUnknown       Category = "unknown"
)

// Action is what the policy table says should happen for a category.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionReassign Action = "reassign"
	ActionFail     Action = "fail"
	ActionPause    Action = "pause"
)

// Policy is the fixed per-category recovery policy.
type Policy struct {
	Category      Category
	Retry         bool
	CooldownMin   float64
	MaxRetries    int
	AllowFailover bool
	Action        Action
}

// policies is the per-category recovery policy table, in match order.
// Order does not affect lookup (keyed by Category below) but is kept
// literal so the table reads as documentation.
var policies = []Policy{
	{Category: CategoryRateLimit, Retry: false, CooldownMin: 45, MaxRetries: 0, AllowFailover: true, Action: ActionReassign},
	{Category: CategoryTimeout, Retry: true, CooldownMin: 0, MaxRetries: 2, AllowFailover: true, Action: ActionRetry},
	{Category: CategoryCrash, Retry: true, CooldownMin: 1, MaxRetries: 3, AllowFailover: true, Action: ActionRetry},
	{Category: CategoryInvalidOutput, Retry: true, CooldownMin: 0, MaxRetries: 2, AllowFailover: false, Action: ActionRetry},
	{Category: CategoryGitConflict, Retry: true, CooldownMin: 0, MaxRetries: 2, AllowFailover: false, Action: ActionRetry},
	{Category: CategoryPermission, Retry: false, CooldownMin: 0, MaxRetries: 0, AllowFailover: false, Action: ActionFail},
	{Category: CategoryNetwork, Retry: true, CooldownMin: 0.5, MaxRetries: 5, AllowFailover: false, Action: ActionRetry},
	{Category: CategoryUnknown, Retry: true, CooldownMin: 1, MaxRetries: 1, AllowFailover: true, Action: ActionRetry},
}

var policyByCategory = func() map[Category]Policy {
	m := make(map[Category]Policy, len(policies))
	for _, p := range policies {
		m[p.Category] = p
	}
	return m
}()

// PolicyFor returns the fixed policy for a category.
func PolicyFor(cat Category) Policy {
	if p, ok := policyByCategory[cat]; ok {
		return p
	}
	return policyByCategory[CategoryUnknown]
}

// signal matches substrings in lowercased output to a category. Rules are
// applied first-hit-wins, in this literal order.
type signal struct {
	category Category
	needles  []string
}

var rateLimitSignals = []string{"rate limit", "too many requests", "quota exceeded", "429", "ratelimit"}
var timeoutSignals = []string{"timed out", "timeout"}

var signals = []signal{
	{CategoryPermission, []string{"permission denied", "access denied", "unauthorized"}},
	{CategoryNetwork, []string{"connection refused", "connection reset", "name resolution failed", "fetch failed"}},
	{CategoryGitConflict, []string{"conflict", "merge conflict", "cannot merge"}},
}

// ExitTimeout is the exit code convention (matching GNU timeout(1)) that
// always classifies as a timeout regardless of output content.
const ExitTimeout = 124

// Classify maps (output, exitCode) onto a Category. It is a pure function:
// the result depends only on its arguments. Rows are tested first-hit-wins,
// in the documented order: rate limit, then timeout (by exit code or output),
// then permission/network/git_conflict, then crash, then unknown.
func Classify(output string, exitCode int) Category {
	lower := strings.ToLower(output)

	if containsAny(lower, rateLimitSignals) {
		return CategoryRateLimit
	}

	if exitCode == ExitTimeout || containsAny(lower, timeoutSignals) {
		return CategoryTimeout
	}

	for _, s := range signals {
		if containsAny(lower, s.needles) {
			return s.category
		}
	}

	if exitCode != 0 && !strings.Contains(lower, "error") {
		return CategoryCrash
	}

	return CategoryUnknown
}

func containsAny(lower string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// Info records a classified failure, attached to a Task's last_error and to
// the AgentAttempt that produced it.
type Info struct {
	Category      Category  `json:"category"`
	Message       string    `json:"message"`
	OccurredAt    time.Time `json:"occurred_at"`
	Agent         string    `json:"agent"`
	OutputSnippet string    `json:"output_snippet"`
}

// maxSnippetLen bounds Info.OutputSnippet.
const maxSnippetLen = 2048

// NewInfo builds an Info from a classified failure, truncating the output
// snippet to a bounded length.
func NewInfo(agent, message, output string, cat Category) Info {
	snippet := output
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	return Info{
		Category:      cat,
		Message:       message,
		OccurredAt:    time.Now(),
		Agent:         agent,
		OutputSnippet: snippet,
	}
}

// ShouldRetry reports whether a task that failed with cat should be retried,
// given its current attempt count against its configured max.
func ShouldRetry(cat Category, attempts, maxAttempts int) bool {
	p := PolicyFor(cat)
	return p.Retry && attempts < maxAttempts
}

// maxReassignments bounds how many times a single task may be reassigned to
// a different agent kind, regardless of policy.
const maxReassignments = 3

// ShouldReassign reports whether a task that just failed with cat should be
// handed to a different agent kind, bounded by maxReassignments regardless
// of what the policy table allows.
func ShouldReassign(cat Category, agentHistoryLength int) bool {
	if agentHistoryLength >= maxReassignments {
		return false
	}
	return PolicyFor(cat).AllowFailover
}

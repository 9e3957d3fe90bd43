// Package agentpool tracks per-agent-kind health and selects which agent
// kind should run the next unit of work.
package agentpool

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the health state of one agent kind.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusBusy        Status = "busy"
	StatusRateLimited Status = "rate_limited"
	StatusErrored     Status = "errored"
	StatusExhausted   Status = "exhausted"
	StatusDisabled    Status = "disabled"
)

// MaxConsecutiveFailures is the threshold at which a kind is marked errored.
const MaxConsecutiveFailures = 3

// DefaultCooldown is the fixed per-kind cooldown table referenced by the
// component design; callers may override via configuration.
var DefaultCooldown = map[string]time.Duration{
	"claude": 45 * time.Minute,
	"codex":  30 * time.Minute,
	"gemini": 30 * time.Minute,
}

// State is the health record for one agent kind.
type State struct {
	Kind                string        `json:"kind"`
	Status              Status        `json:"status"`
	AvailableAt         time.Time     `json:"available_at,omitempty"`
	CooldownMinutes     float64       `json:"cooldown_minutes"`
	SuccessRate         float64       `json:"success_rate"`
	MeanDuration        time.Duration `json:"mean_duration"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Completed           int           `json:"completed"`
	Failed              int           `json:"failed"`
}

func newState(kind string, cooldown time.Duration) *State {
	return &State{
		Kind:            kind,
		Status:          StatusAvailable,
		CooldownMinutes: cooldown.Minutes(),
		SuccessRate:     1.0,
	}
}

// SelectionKind distinguishes the three outcomes of Select.
type SelectionKind int

const (
	SelectionSelected SelectionKind = iota
	SelectionWait
	SelectionPause
)

// Selection is the result of Select.
type Selection struct {
	Kind   SelectionKind
	Agent  string    // valid when Kind == SelectionSelected
	Until  time.Time // valid when Kind == SelectionWait
	Reason string
}

// Pool tracks health for a fixed set of agent kinds and selects among them.
type Pool struct {
	mu     sync.Mutex
	states map[string]*State
	order  []string // fixed fallback order, preserves insertion order
}

// New creates a Pool for kinds, in fallback-priority order. Cooldowns is an
// optional override of DefaultCooldown; kinds missing from it fall back to
// DefaultCooldown, and then to 30 minutes.
func New(kinds []string, cooldowns map[string]time.Duration) *Pool {
	p := &Pool{states: make(map[string]*State, len(kinds)), order: append([]string(nil), kinds...)}
	for _, k := range kinds {
		cd, ok := cooldowns[k]
		if !ok {
			cd, ok = DefaultCooldown[k]
		}
		if !ok {
			cd = 30 * time.Minute
		}
		p.states[k] = newState(k, cd)
	}
	return p
}

// Disable marks kind disabled, e.g. because its binary was not found on PATH.
func (p *Pool) Disable(kind string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.states[kind]; ok {
		s.Status = StatusDisabled
	}
}

// Snapshot returns a copy of every tracked state, in fallback order.
func (p *Pool) Snapshot() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, *p.states[k])
	}
	return out
}

// Restore overwrites tracked state from a loaded snapshot, used on resume.
func (p *Pool) Restore(states []State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range states {
		s := s
		if _, ok := p.states[s.Kind]; ok {
			p.states[s.Kind] = &s
		}
	}
}

func score(s *State) float64 {
	d := s.MeanDuration.Seconds()
	if d < 1 {
		d = 1
	}
	return s.SuccessRate / d
}

// Select picks one agent kind, reactivating any rate_limited kind whose
// cooldown has elapsed first.
func (p *Pool) Select() Selection {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for _, k := range p.order {
		s := p.states[k]
		if s.Status == StatusRateLimited && !s.AvailableAt.After(now) {
			s.Status = StatusAvailable
		}
	}

	var available []*State
	earliestWait := time.Time{}
	allBlocked := true
	for _, k := range p.order {
		s := p.states[k]
		if s.Status == StatusAvailable {
			available = append(available, s)
			allBlocked = false
		}
		if s.Status != StatusExhausted && s.Status != StatusDisabled {
			allBlocked = false
		}
		if s.Status == StatusRateLimited && (earliestWait.IsZero() || s.AvailableAt.Before(earliestWait)) {
			earliestWait = s.AvailableAt
		}
	}

	if len(available) > 0 {
		sort.SliceStable(available, func(i, j int) bool {
			return score(available[i]) > score(available[j])
		})
		return Selection{Kind: SelectionSelected, Agent: available[0].Kind}
	}

	if allBlocked {
		return Selection{Kind: SelectionPause, Reason: "all agent kinds exhausted or disabled"}
	}

	if !earliestWait.IsZero() {
		return Selection{Kind: SelectionWait, Until: earliestWait, Reason: "all agent kinds rate limited"}
	}

	return Selection{Kind: SelectionPause, Reason: "no agent kind available"}
}

// MarkBusy records that kind has been dispatched work.
func (p *Pool) MarkBusy(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[kind]
	if !ok {
		return fmt.Errorf("agentpool: unknown kind %q", kind)
	}
	s.Status = StatusBusy
	return nil
}

// MarkAvailable returns kind to available after it finishes work with no
// terminal health change.
func (p *Pool) MarkAvailable(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[kind]
	if !ok {
		return fmt.Errorf("agentpool: unknown kind %q", kind)
	}
	if s.Status == StatusBusy {
		s.Status = StatusAvailable
	}
	return nil
}

// MarkRateLimited sets kind into cooldown for the given duration, or its
// configured default cooldown when cooldown <= 0.
func (p *Pool) MarkRateLimited(kind string, cooldown time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[kind]
	if !ok {
		return fmt.Errorf("agentpool: unknown kind %q", kind)
	}
	if cooldown <= 0 {
		cooldown = time.Duration(s.CooldownMinutes * float64(time.Minute))
	}
	s.Status = StatusRateLimited
	s.AvailableAt = time.Now().Add(cooldown)
	return nil
}

// RecordSuccess folds a successful execution duration into the rolling mean
// and recomputes success_rate, resetting consecutive_failures.
func (p *Pool) RecordSuccess(kind string, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[kind]
	if !ok {
		return fmt.Errorf("agentpool: unknown kind %q", kind)
	}
	s.Completed++
	s.ConsecutiveFailures = 0
	total := s.Completed + s.Failed
	if total > 0 {
		s.SuccessRate = float64(s.Completed) / float64(total)
	}
	if s.Completed == 1 {
		s.MeanDuration = duration
	} else {
		n := float64(s.Completed)
		s.MeanDuration = time.Duration((float64(s.MeanDuration)*(n-1) + float64(duration)) / n)
	}
	if s.Status == StatusBusy {
		s.Status = StatusAvailable
	}
	return nil
}

// RecordFailure increments consecutive failures, transitioning kind to
// errored once MaxConsecutiveFailures is reached.
func (p *Pool) RecordFailure(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[kind]
	if !ok {
		return fmt.Errorf("agentpool: unknown kind %q", kind)
	}
	s.Failed++
	s.ConsecutiveFailures++
	total := s.Completed + s.Failed
	if total > 0 {
		s.SuccessRate = float64(s.Completed) / float64(total)
	}
	if s.ConsecutiveFailures >= MaxConsecutiveFailures {
		s.Status = StatusErrored
	} else if s.Status == StatusBusy {
		s.Status = StatusAvailable
	}
	return nil
}

// Exhaust marks kind permanently unavailable for the remainder of the
// session, e.g. after an unrecoverable configuration error.
func (p *Pool) Exhaust(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[kind]
	if !ok {
		return fmt.Errorf("agentpool: unknown kind %q", kind)
	}
	s.Status = StatusExhausted
	return nil
}

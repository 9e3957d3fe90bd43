// Package tui renders a live dashboard for a running session, driven by
// the Event Bus. It backs the `loopctl watch` command.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loopctl/loopctl/internal/events"
)

// Styles contains the dashboard's visual styling.
type Styles struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Completed lipgloss.Style
	Failed    lipgloss.Style
	Subtle    lipgloss.Style
}

// DefaultStyles returns the dashboard's default styling.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Completed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")),
		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		Subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

const maxFeedLines = 12

// feedLine is one rendered entry in the event feed.
type feedLine struct {
	at   time.Time
	text string
}

// Dashboard is a bubbletea model that subscribes to a session's Event Bus
// and renders a running summary: completed and failed task counts, and a
// scrolling feed of the most recent events.
type Dashboard struct {
	SessionID string
	bus       events.Publisher
	sub       <-chan events.Event

	styles Styles

	completed int
	failed    int
	feed      []feedLine
	quitting  bool
}

// New creates a Dashboard subscribed to bus.
func New(sessionID string, bus events.Publisher) *Dashboard {
	return &Dashboard{
		SessionID: sessionID,
		bus:       bus,
		styles:    DefaultStyles(),
	}
}

// eventMsg wraps one event delivered from the bus.
type eventMsg events.Event

// closedMsg signals the subscription channel was closed.
type closedMsg struct{}

// Run starts the bubbletea program and blocks until the user quits or the
// bus closes.
func (d *Dashboard) Run() error {
	p := tea.NewProgram(d)
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	d.sub = d.bus.Subscribe(events.TopicAll)
	return d.waitForEvent()
}

func (d *Dashboard) waitForEvent() tea.Cmd {
	sub := d.sub
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			d.quitting = true
			return d, tea.Quit
		}

	case eventMsg:
		d.apply(events.Event(msg))
		return d, d.waitForEvent()

	case closedMsg:
		d.quitting = true
		return d, tea.Quit
	}

	return d, nil
}

func (d *Dashboard) apply(ev events.Event) {
	switch ev.Topic {
	case events.TopicTaskCompleted:
		d.completed++
		if data, ok := ev.Data.(events.TaskCompletedData); ok {
			d.pushFeed(ev.Time, fmt.Sprintf("completed %s (%s)", ev.TaskID, data.Agent))
		}
	case events.TopicTaskFailed:
		if data, ok := ev.Data.(events.TaskFailedData); ok {
			if data.Terminal {
				d.failed++
			}
			d.pushFeed(ev.Time, fmt.Sprintf("failed %s: %s", ev.TaskID, data.Message))
		}
	case events.TopicPlannerWakeup:
		d.pushFeed(ev.Time, "planner woken for mid-cycle replan")
	}
}

func (d *Dashboard) pushFeed(at time.Time, text string) {
	d.feed = append(d.feed, feedLine{at: at, text: text})
	if len(d.feed) > maxFeedLines {
		d.feed = d.feed[len(d.feed)-maxFeedLines:]
	}
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.styles.Title.Render("loopctl watch: "+d.SessionID))
	fmt.Fprintf(&b, "%s %s   %s %s\n\n",
		d.styles.Label.Render("completed:"), d.styles.Completed.Render(fmt.Sprintf("%d", d.completed)),
		d.styles.Label.Render("failed:"), d.styles.Failed.Render(fmt.Sprintf("%d", d.failed)))

	for _, line := range d.feed {
		fmt.Fprintf(&b, "%s %s\n", d.styles.Subtle.Render(line.at.Format("15:04:05")), line.text)
	}

	b.WriteString("\n" + d.styles.Subtle.Render("press q to quit"))
	return b.String()
}

package watchui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"batchcursor/internal/observer"
	bprogress "batchcursor/internal/progress"
	"batchcursor/internal/state"
)

// EventMsg carries one event from the stream.
type EventMsg struct {
	Event observer.Event
}

// StreamClosedMsg ends the dashboard when the stream stops.
type StreamClosedMsg struct {
	Err error
}

// row is the latest known state of one collection.
type row struct {
	collection string
	lane       string
	offset     int
	total      int
	status     string
	itemID     string
	progress   string
	skipped    int
	errText    string
	complete   bool
	updated    time.Time
}

// Model is the bubbletea model behind `batchcursor watch`.
type Model struct {
	events <-chan observer.Event
	filter string

	rows    map[string]*row
	spinner spinner.Model
	bar     progress.Model

	received int
	width    int
	closed   bool
	err      error
}

// New builds a model that reads events from ch. A non-empty filter limits
// the dashboard to collections whose key contains it.
func New(ch <-chan observer.Event, filter string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30

	return Model{
		events:  ch,
		filter:  strings.TrimSpace(filter),
		rows:    make(map[string]*row),
		spinner: s,
		bar:     bar,
		width:   80,
	}
}

// WaitForEvent returns a command that delivers the next event from ch.
func WaitForEvent(ch <-chan observer.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: evt}
	}
}

// Init starts the spinner and the event wait.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, WaitForEvent(m.events))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if width := msg.Width - 40; width > 10 {
			m.bar.Width = min(width, 60)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(msg.Event)
		return m, WaitForEvent(m.events)

	case StreamClosedMsg:
		m.closed = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(evt observer.Event) {
	if m.filter != "" && !strings.Contains(evt.Collection, m.filter) {
		return
	}
	m.received++
	r, ok := m.rows[evt.Collection]
	if !ok {
		r = &row{collection: evt.Collection}
		m.rows[evt.Collection] = r
	}
	r.lane = evt.Lane
	r.offset = evt.Offset
	r.total = evt.Total
	r.status = string(evt.Status)
	r.itemID = evt.ItemID
	r.progress = evt.Progress
	r.skipped += len(evt.Skipped)
	r.errText = evt.Error
	r.complete = evt.BatchComplete
	r.updated = evt.Time
}

// ratio is the fraction of the collection processed.
func (r *row) ratio() float64 {
	if r.complete || r.status == string(state.StatusCompleted) {
		return 1
	}
	if r.total <= 0 {
		return 0
	}
	return bprogress.Percent(r.offset, r.total) / 100
}

func (m Model) sortedRows() []*row {
	out := make([]*row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].updated.Equal(out[b].updated) {
			return out[a].collection < out[b].collection
		}
		return out[a].updated.After(out[b].updated)
	})
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("batchcursor watch"))
	b.WriteString("\n")

	rows := m.sortedRows()
	if len(rows) == 0 {
		fmt.Fprintf(&b, "%s waiting for invocations...\n", m.spinner.View())
	}
	for _, r := range rows {
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := fmt.Sprintf("%d events", m.received)
	if m.closed {
		footer += " · stream closed"
		if m.err != nil {
			footer += ": " + m.err.Error()
		}
	}
	footer += " · q to quit"
	b.WriteString(mutedStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderRow(r *row) string {
	name := collectionStyle.Render(r.collection)
	if r.lane != "" {
		name += mutedStyle.Render(" [" + r.lane + "]")
	}
	status := statusStyle(r.status).Render(r.status)

	indicator := " "
	if r.status == string(state.StatusInProgress) && !r.complete {
		indicator = m.spinner.View()
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left, indicator, " ", m.bar.ViewAs(r.ratio()), " ", r.progress, " ", status)

	detail := ""
	if r.itemID != "" {
		detail = mutedStyle.Render("  " + r.itemID)
	}
	if r.skipped > 0 {
		detail += skippedStyle.Render(fmt.Sprintf("  %d skipped", r.skipped))
	}
	if r.errText != "" {
		detail += errorStyle.Render("  " + r.errText)
	}
	return name + "\n" + line + detail
}

package watchui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"batchcursor/internal/observer"
	"batchcursor/internal/state"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", next)
	}
	return model, cmd
}

func TestEventUpdatesRow(t *testing.T) {
	ch := make(chan observer.Event)
	m := New(ch, "")

	m, cmd := update(t, m, EventMsg{Event: observer.Event{
		Collection: "/shots",
		Offset:     1,
		Total:      4,
		Status:     state.StatusInProgress,
		ItemID:     "b.png",
		Progress:   "2 of 4 (50%)",
		Skipped:    []string{"a.png"},
		Time:       time.Now(),
	}})
	if cmd == nil {
		t.Fatal("expected follow-up wait command")
	}
	r, ok := m.rows["/shots"]
	if !ok {
		t.Fatal("expected row for /shots")
	}
	if r.offset != 1 || r.total != 4 || r.skipped != 1 {
		t.Fatalf("unexpected row %+v", *r)
	}
	if got := r.ratio(); got != 0.5 {
		t.Fatalf("ratio = %v, want 0.5", got)
	}

	view := m.View()
	for _, want := range []string{"/shots", "2 of 4 (50%)", "b.png", "1 skipped"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestFilterDropsOtherCollections(t *testing.T) {
	m := New(make(chan observer.Event), "keep")
	m, _ = update(t, m, EventMsg{Event: observer.Event{Collection: "/other", Total: 1}})
	m, _ = update(t, m, EventMsg{Event: observer.Event{Collection: "/keep/me", Total: 1}})
	if len(m.rows) != 1 || m.received != 1 {
		t.Fatalf("expected only filtered collection, got %d rows", len(m.rows))
	}
	if _, ok := m.rows["/keep/me"]; !ok {
		t.Fatal("expected /keep/me row")
	}
}

func TestCompletedRowIsFull(t *testing.T) {
	m := New(make(chan observer.Event), "")
	m, _ = update(t, m, EventMsg{Event: observer.Event{
		Collection:    "/done",
		Offset:        2,
		Total:         3,
		Status:        state.StatusCompleted,
		BatchComplete: true,
	}})
	if got := m.rows["/done"].ratio(); got != 1 {
		t.Fatalf("ratio = %v, want 1", got)
	}
}

func TestStreamClosedQuits(t *testing.T) {
	m := New(make(chan observer.Event), "")
	m, cmd := update(t, m, StreamClosedMsg{Err: errors.New("connection reset")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "connection reset") {
		t.Fatal("expected close reason in view")
	}
}

func TestWaitForEventReportsClosedChannel(t *testing.T) {
	ch := make(chan observer.Event, 1)
	ch <- observer.Event{Collection: "/a"}
	close(ch)

	if msg, ok := WaitForEvent(ch)().(EventMsg); !ok || msg.Event.Collection != "/a" {
		t.Fatalf("expected event, got %#v", msg)
	}
	if _, ok := WaitForEvent(ch)().(StreamClosedMsg); !ok {
		t.Fatal("expected StreamClosedMsg after close")
	}
}

func TestQuitKeysAndSpinner(t *testing.T) {
	m := New(make(chan observer.Event), "")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit on q")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}

	if _, cmd := update(t, m, spinner.TickMsg{}); cmd == nil {
		t.Fatal("expected spinner to schedule the next tick")
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.width != 120 || m.bar.Width != 60 {
		t.Fatalf("unexpected sizing width=%d bar=%d", m.width, m.bar.Width)
	}
	if !strings.Contains(m.View(), "waiting for invocations") {
		t.Fatal("expected empty-state message")
	}
}

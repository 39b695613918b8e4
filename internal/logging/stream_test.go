package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandler_WithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).With(slog.String(FieldCollection, "/photos"))
	logger.Info("item dispatched", slog.String(FieldItemID, "/photos/a.png"), slog.Int(FieldOffset, 0))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Collection != "/photos" {
		t.Errorf("expected collection from WithAttrs, got %q", evt.Collection)
	}
	if evt.ItemID != "/photos/a.png" {
		t.Errorf("expected item_id, got %q", evt.ItemID)
	}
	if evt.Fields[FieldOffset] != "0" {
		t.Errorf("expected offset field, got %v", evt.Fields)
	}
	if evt.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", evt.Sequence)
	}
}

func TestStreamHandler_CallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).With(slog.String(FieldLane, "original"))
	logger.Info("message", slog.String(FieldLane, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Lane != "overridden" {
		t.Errorf("expected lane='overridden', got %q", events[0].Lane)
	}
}

func TestStreamHandler_NilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHandler_Enabled(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newStreamHandler(base, hub)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestStreamHubCapacityAndFetch(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "line"})
	}
	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("expected oldest buffered sequence 3, got %d", first)
	}
	events, next, err := hub.Fetch(context.Background(), 3, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || events[0].Sequence != 4 || next != 5 {
		t.Fatalf("unexpected fetch result: %+v next=%d", events, next)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wake"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "wake" {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonoursCancel(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

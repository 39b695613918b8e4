package observer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"batchcursor/internal/logging"
	"batchcursor/internal/observer"
	"batchcursor/internal/state"
)

type collector struct {
	mu     sync.Mutex
	events []observer.Event
}

func (c *collector) Notify(_ context.Context, evt observer.Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBroadcasterDeliversToEverySubscriber(t *testing.T) {
	a, b := &collector{}, &collector{}
	bc := observer.NewBroadcaster(a)
	unsubscribe := bc.Subscribe(b)

	bc.Notify(context.Background(), observer.Event{Offset: 1})
	if a.len() != 1 || b.len() != 1 {
		t.Fatalf("expected both observers notified, got %d and %d", a.len(), b.len())
	}

	unsubscribe()
	unsubscribe()
	bc.Notify(context.Background(), observer.Event{Offset: 2})
	if a.len() != 2 || b.len() != 1 {
		t.Fatalf("expected only a after unsubscribe, got %d and %d", a.len(), b.len())
	}
	if bc.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bc.Len())
	}
}

func TestLatencyRecorderPercentiles(t *testing.T) {
	rec := observer.NewLatencyRecorder()
	if stats := rec.Snapshot(); stats.Count != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	for i := 1; i <= 100; i++ {
		rec.Notify(context.Background(), observer.Event{Elapsed: time.Duration(i) * time.Millisecond})
	}
	stats := rec.Snapshot()
	if stats.Count != 100 {
		t.Fatalf("expected 100 samples, got %d", stats.Count)
	}
	if stats.P50 < 49*time.Millisecond || stats.P50 > 51*time.Millisecond {
		t.Fatalf("unexpected p50 %s", stats.P50)
	}
	if stats.Max < 99*time.Millisecond {
		t.Fatalf("unexpected max %s", stats.Max)
	}
	rec.Reset()
	if rec.Snapshot().Count != 0 {
		t.Fatal("expected reset to clear samples")
	}
}

func TestLogObserverSamplesProgress(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	obs := observer.NewLogObserver(logger)
	for offset := 0; offset < 100; offset++ {
		obs.Notify(context.Background(), observer.Event{Collection: "/c", Offset: offset, Total: 100, Status: state.StatusInProgress})
	}
	lines := strings.Count(buf.String(), "\n")
	if lines == 0 || lines > 12 {
		t.Fatalf("expected sampled progress lines, got %d", lines)
	}

	buf.Reset()
	obs.Notify(context.Background(), observer.Event{Collection: "/c", Status: state.StatusInterrupted, Error: "boom"})
	if !strings.Contains(buf.String(), "sequence interrupted") || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected interruption warning, got %q", buf.String())
	}

	buf.Reset()
	obs.Notify(context.Background(), observer.Event{Collection: "/c", Status: state.StatusCompleted, BatchComplete: true})
	if !strings.Contains(buf.String(), "batch complete") {
		t.Fatalf("expected completion line, got %q", buf.String())
	}
}

func TestWebSocketHubBroadcasts(t *testing.T) {
	hub := observer.NewWebSocketHub(logging.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.Clients())
	}

	hub.Notify(context.Background(), observer.Event{Collection: "/c", Offset: 3, Total: 5, ItemID: "d.png", Status: state.StatusInProgress})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt observer.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.ItemID != "d.png" || evt.Offset != 3 || evt.Status != state.StatusInProgress {
		t.Fatalf("unexpected event %+v", evt)
	}
}

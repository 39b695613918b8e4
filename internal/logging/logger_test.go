package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"batchcursor/internal/config"
	"batchcursor/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "batchcursor.log", nil)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "batchcursor.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello file") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "driver")
	logger.Info("item dispatched", logging.Args(logging.Cursor("/data/photos", "nightly", 2, 10)...)...)

	line := buf.String()
	for _, want := range []string{"INFO", "[driver]", "photos/nightly", "item dispatched", "offset=2", "total=10"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("suppressed")
	logger.Warn("visible")
	if strings.Contains(buf.String(), "suppressed") || !strings.Contains(buf.String(), "visible") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestJSONLoggerUsesTsKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("json line", logging.String(logging.FieldStatus, "in_progress"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json line: %v (%q)", err, buf.String())
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if payload["status"] != "in_progress" {
		t.Fatalf("expected status attr, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	hub := logging.NewStreamHub(10)
	logger, err := logging.New(logging.Options{Format: "console", Writer: &bytes.Buffer{}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithCollection(context.Background(), "/photos")
	ctx = logging.WithInvocationID(ctx, "inv-1")
	logging.WithContext(ctx, logger).Info("scoped")

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Collection != "/photos" || events[0].InvocationID != "inv-1" {
		t.Fatalf("context fields missing: %+v", events[0])
	}
	if id, ok := logging.InvocationIDFromContext(ctx); !ok || id != "inv-1" {
		t.Fatalf("InvocationIDFromContext = %q, %v", id, ok)
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var first, second bytes.Buffer
	a, _ := logging.New(logging.Options{Format: "console", Writer: &first})
	b, _ := logging.New(logging.Options{Format: "json", Writer: &second})
	logging.TeeLogger(a, b.Handler()).Info("both")
	if !strings.Contains(first.String(), "both") || !strings.Contains(second.String(), "both") {
		t.Fatalf("expected both sinks to receive record: %q / %q", first.String(), second.String())
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	sampler := logging.NewProgressSampler(25)
	steps := []struct {
		percent float64
		key     string
		want    bool
	}{
		{0, "/a", true},
		{10, "/a", false},
		{30, "/a", true},
		{40, "/a", false},
		{100, "/a", true},
		{0, "/a", true},
		{0, "/b", true},
	}
	for i, step := range steps {
		if got := sampler.ShouldLog(step.percent, step.key); got != step.want {
			t.Fatalf("step %d: ShouldLog(%v, %q) = %v want %v", i, step.percent, step.key, got, step.want)
		}
	}
}

package main

import (
	"strings"
	"testing"

	"batchcursor/internal/api"
	"batchcursor/internal/iteration"
	"batchcursor/internal/source"
)

func TestDisplayState(t *testing.T) {
	cases := map[string]string{
		"in_progress": "In Progress",
		"completed":   "Completed",
		"":            "-",
	}
	for input, want := range cases {
		if got := displayState(input); got != want {
			t.Fatalf("displayState(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatResultLine(t *testing.T) {
	res := iteration.Result{
		Item:          &source.Item{ID: "c.png", Path: "/x/c.png"},
		Progress:      "3 of 3 (100%)",
		BatchComplete: true,
		Skipped:       []iteration.SkippedItem{{Offset: 1, ItemID: "b.png", Reason: "decode"}},
	}
	line := formatResultLine(res, false)
	for _, want := range []string{"3 of 3 (100%)", "c.png", "skipped 1", "done"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no ANSI codes, got %q", line)
	}
}

func TestFormatLogEvent(t *testing.T) {
	line := formatLogEvent(api.LogEvent{
		Timestamp:  "not-a-time",
		Level:      "warn",
		Message:    "signal failed",
		Component:  "driver",
		Collection: "/data/shots",
		Lane:       "nightly",
		Fields:     map[string]string{"error_hint": "check scheduler", "empty": " "},
	})
	for _, want := range []string{"not-a-time WARN [driver] shots/nightly - signal failed", "- error_hint: check scheduler"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "empty") {
		t.Fatalf("expected blank fields to be dropped: %q", line)
	}
}

func TestRenderStatusLine(t *testing.T) {
	plain := renderStatusLine("Scheduler", statusWarn, "no", false)
	if !strings.Contains(plain, "[WARN] no") || strings.Contains(plain, ansiYellow) {
		t.Fatalf("unexpected plain line %q", plain)
	}
	colored := renderStatusLine("Scheduler", statusWarn, "no", true)
	if !strings.HasPrefix(colored, ansiYellow) {
		t.Fatalf("expected yellow line, got %q", colored)
	}
}

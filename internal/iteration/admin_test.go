package iteration_test

import (
	"context"
	"errors"
	"testing"

	"batchcursor/internal/iteration"
	"batchcursor/internal/state"
)

func TestResetClearsInterruption(t *testing.T) {
	h := newHarness(t, state.NewMemoryStore(), "B")
	h.cols.set("abc", "A", "B", "C")

	_, _ = h.invoke(t, iteration.Request{Collection: "abc"})
	if _, err := h.invoke(t, iteration.Request{Collection: "abc"}); err == nil {
		t.Fatal("expected item failure")
	}

	rec, err := h.driver.Reset(context.Background(), h.key("abc"))
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if rec.Offset != 0 || rec.Status != state.StatusIdle || rec.Total != 3 {
		t.Fatalf("record after reset = %+v", rec)
	}
	res, err := h.invoke(t, iteration.Request{Collection: "abc"})
	if err != nil || itemID(res) != "A" {
		t.Fatalf("after reset: %v, %+v", err, res)
	}
}

func TestResetRejectsEmptyCollection(t *testing.T) {
	h := newHarness(t, state.NewMemoryStore())
	_, err := h.driver.Reset(context.Background(), "   ")
	if !errors.Is(err, iteration.ErrInvalidKey) || iteration.Kind(err) != iteration.KindInput {
		t.Fatalf("Reset(blank) = %v", err)
	}
}

func TestResetAllAndRecords(t *testing.T) {
	h := newHarness(t, state.NewMemoryStore())
	h.cols.set("one", "A")
	h.cols.set("two", "A", "B")
	_, _ = h.invoke(t, iteration.Request{Collection: "one", Lane: "x"})
	_, _ = h.invoke(t, iteration.Request{Collection: "two", Lane: "y"})

	records, err := h.driver.Records(context.Background())
	if err != nil || len(records) != 2 {
		t.Fatalf("Records = %v, %v", records, err)
	}
	if records[0].Key > records[1].Key {
		t.Fatalf("records not ordered by key: %v", records)
	}

	if err := h.driver.ResetAll(context.Background()); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	records, err = h.driver.Records(context.Background())
	if err != nil || len(records) != 0 {
		t.Fatalf("Records after ResetAll = %v, %v", records, err)
	}
}

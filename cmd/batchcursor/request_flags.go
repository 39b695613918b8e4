package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"batchcursor/internal/api"
	"batchcursor/internal/iteration"
)

// requestFlags are the per-invocation options shared by run, invoke, and
// jobs submit.
type requestFlags struct {
	lane          string
	mode          string
	failurePolicy string
	startOffset   int
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.lane, "lane", "", "Lane identifying this caller (defaults to iteration.lane)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "continue or reset (defaults to iteration.mode)")
	cmd.Flags().StringVar(&f.failurePolicy, "failure-policy", "", "halt-on-error or skip-on-error (defaults to iteration.failure_policy)")
	cmd.Flags().IntVar(&f.startOffset, "start-offset", -1, "Zero-based offset for a fresh cursor")
}

func (f *requestFlags) validate() error {
	if _, err := iteration.ParseMode(f.mode); err != nil {
		return err
	}
	if _, err := iteration.ParseFailurePolicy(f.failurePolicy); err != nil {
		return err
	}
	if f.startOffset < -1 {
		return fmt.Errorf("--start-offset must be >= 0, got %d", f.startOffset)
	}
	return nil
}

func (f *requestFlags) offset() *int {
	if f.startOffset < 0 {
		return nil
	}
	offset := f.startOffset
	return &offset
}

// apiRequest builds the daemon request; unset fields fall back to the
// daemon's configured defaults.
func (f *requestFlags) apiRequest(collection string) api.InvokeRequest {
	return api.InvokeRequest{
		Collection:    strings.TrimSpace(collection),
		Lane:          strings.TrimSpace(f.lane),
		Mode:          strings.ToLower(strings.TrimSpace(f.mode)),
		FailurePolicy: strings.ToLower(strings.TrimSpace(f.failurePolicy)),
		StartOffset:   f.offset(),
	}
}

func (f *requestFlags) request(collection string) iteration.Request {
	return f.apiRequest(collection).ToRequest()
}

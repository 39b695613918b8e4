package iteration

import (
	"fmt"
	"strings"
	"time"

	"batchcursor/internal/signal"
	"batchcursor/internal/source"
	"batchcursor/internal/state"
)

// Mode selects whether an invocation resumes or restarts the sequence.
type Mode string

const (
	ModeContinue Mode = "continue"
	ModeReset    Mode = "reset"
)

// FailurePolicy selects how item failures are handled.
type FailurePolicy string

const (
	HaltOnError FailurePolicy = "halt-on-error"
	SkipOnError FailurePolicy = "skip-on-error"
)

// ParseMode accepts "continue" or "reset", case-insensitively.
func ParseMode(value string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return ModeContinue, nil
	case ModeContinue, ModeReset:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, value)
	}
}

// ParseFailurePolicy accepts "halt-on-error" or "skip-on-error".
func ParseFailurePolicy(value string) (FailurePolicy, error) {
	switch policy := FailurePolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case "":
		return HaltOnError, nil
	case HaltOnError, SkipOnError:
		return policy, nil
	default:
		return "", fmt.Errorf("%w: unknown failure policy %q", ErrInvalidRequest, value)
	}
}

// Request is one invocation of the driver.
type Request struct {
	// Collection is the raw collection key (directory or manifest path).
	Collection string `json:"collection"`
	// Lane identifies the caller for collection-change detection.
	Lane          string        `json:"lane,omitempty"`
	Mode          Mode          `json:"mode,omitempty"`
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty"`
	// StartOffset is honoured only when the record is fresh.
	StartOffset *int `json:"start_offset,omitempty"`
	// Token is forwarded with the continuation signal.
	Token string `json:"token,omitempty"`
}

func (r Request) normalized() (Request, error) {
	mode, err := ParseMode(string(r.Mode))
	if err != nil {
		return r, err
	}
	policy, err := ParseFailurePolicy(string(r.FailurePolicy))
	if err != nil {
		return r, err
	}
	if r.StartOffset != nil && *r.StartOffset < 0 {
		return r, fmt.Errorf("%w: start offset must be >= 0, got %d", ErrInvalidRequest, *r.StartOffset)
	}
	r.Mode = mode
	r.FailurePolicy = policy
	r.Lane = strings.TrimSpace(r.Lane)
	return r, nil
}

// SkippedItem records an item passed over by skip-on-error.
type SkippedItem struct {
	Offset int    `json:"offset"`
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// Result describes what an invocation did.
type Result struct {
	// Collection is the normalized key.
	Collection string `json:"collection"`
	// Item is the processed item, nil when the batch completed because every
	// remaining candidate was skipped.
	Item *source.Item `json:"item,omitempty"`
	// Offset is the zero-based position of Item.
	Offset int `json:"offset"`
	Total  int `json:"total"`
	// Status is the record status after the invocation.
	Status        state.Status  `json:"status"`
	BatchComplete bool          `json:"batch_complete"`
	Skipped       []SkippedItem `json:"skipped,omitempty"`
	Progress      string        `json:"progress,omitempty"`
	// BaseName, Format and DirName describe Item.
	BaseName string `json:"base_name,omitempty"`
	Format   string `json:"format,omitempty"`
	DirName  string `json:"dir_name,omitempty"`
	// Signal is the instruction sent to the control plane.
	Signal signal.Instruction `json:"signal,omitempty"`
	// SignalErr is set when the instruction could not be delivered.
	SignalErr    error         `json:"-"`
	SignalError  string        `json:"signal_error,omitempty"`
	InvocationID string        `json:"invocation_id"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

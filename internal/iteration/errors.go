package iteration

import (
	"errors"
	"fmt"
	"net/http"

	"batchcursor/internal/state"
)

var (
	// ErrInvalidKey is returned for an empty collection key.
	ErrInvalidKey = state.ErrInvalidKey
	// ErrEmptyCollection is returned when the snapshot has no items.
	ErrEmptyCollection = errors.New("collection has no matching items")
	// ErrInvalidRequest is returned for unknown modes, policies, or negative offsets.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSequenceInterrupted is returned by continue-mode invocations on an
	// interrupted sequence. Reset the collection to start over.
	ErrSequenceInterrupted = errors.New("sequence interrupted; reset required")
	// ErrSkipBudgetExhausted is returned when skip-on-error failed on every
	// attempt it was allowed within one invocation.
	ErrSkipBudgetExhausted = errors.New("all remaining items failed")
)

// Error kinds reported by Kind.
const (
	KindInput       = "input"
	KindInterrupted = "interrupted"
	KindItem        = "item"
	KindExhausted   = "exhausted"
	KindInternal    = "internal"
)

// ErrorClassifier lets errors declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// InputError reports a problem with the request or the collection it names.
// State is left untouched.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *InputError) ErrorKind() string { return KindInput }

func inputError(op string, err error) error {
	return &InputError{Op: op, Err: err}
}

// ItemError reports a pipeline failure on one item.
type ItemError struct {
	Offset int
	ItemID string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s (offset %d): %v", e.ItemID, e.Offset, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *ItemError) ErrorKind() string { return KindItem }

// Kind classifies err for status mapping and logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSequenceInterrupted):
		return KindInterrupted
	case errors.Is(err, ErrSkipBudgetExhausted):
		return KindExhausted
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the daemon API responds with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case KindInput:
		return http.StatusBadRequest
	case KindInterrupted:
		return http.StatusConflict
	case KindItem, KindExhausted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

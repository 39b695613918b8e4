// Package iteration implements the resumable driver that walks a collection
// one item per invocation.
//
// Each call to Driver.Invoke locks the collection key, reconciles stored
// state with the current snapshot (collection change, reset mode, stale
// offsets), processes exactly one item through the pipeline step, and moves
// the cursor. Once the lock is released it notifies observers and sends a
// continue or halt instruction to the control plane. Failure handling
// follows the request's FailurePolicy: halt-on-error interrupts the sequence
// at the first failing item, skip-on-error moves past failures but gives up
// after one full pass worth of attempts.
package iteration

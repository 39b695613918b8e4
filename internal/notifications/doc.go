// Package notifications sends ntfy alerts when a sequence finishes or is
// interrupted.
//
// NewService returns a noop implementation when no topic is configured, so
// callers can wire it unconditionally. NewObserver adapts a Service into an
// observer.Observer that the iteration driver notifies after every
// invocation; only batch completion and interruption produce a message.
package notifications

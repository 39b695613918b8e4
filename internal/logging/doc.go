// Package logging builds the slog loggers used across batchcursor.
//
// New and NewFromConfig produce either a single-line console handler or a
// JSON handler, optionally teeing records into a StreamHub so the daemon can
// serve recent log lines over its API. Standard field names (collection,
// lane, offset, invocation_id) live in context.go; helpers there lift the
// values carried on a context.Context into logger attributes.
package logging

// Package api defines wire-format types and converters for the daemon's HTTP
// API. It translates driver results, stored records, scheduled jobs, and log
// events into transport-friendly DTOs so clients never couple to internal
// types.
//
// # Key Types
//
// InvokeRequest/InvokeResponse: one driver invocation and its outcome.
//
// Record/RecordsResponse: persisted cursors per collection.
//
// Job/JobsResponse: sequences scheduled by the daemon's job table.
//
// DaemonStatus: running state, job counts, latency, and client counts.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (state.Status,
// signal.Instruction) are exposed as lowercase strings. Timestamps use
// RFC3339 with milliseconds and durations are reported in milliseconds.
package api

// Package daemon coordinates the long-running batchcursor process.
//
// It wires configuration, the iteration engine, the job table that answers
// continue/halt instructions, and the event hubs into a single lifecycle with
// flock-based locking to prevent multiple instances per log directory. The
// daemon exposes an HTTP API for invocations, record maintenance, job
// control, log tailing, and websocket progress events.
//
// Keep orchestration logic here: iteration semantics live in the iteration
// package while the daemon focuses on startup, shutdown, and transport.
package daemon

// Package main hosts the batchcursor CLI entrypoint and command graph.
//
// The Cobra command tree runs collections locally through the iteration
// engine, starts and stops the daemon, and translates the remaining
// subcommands into HTTP calls against the daemon API. Configuration
// resolution and daemon client construction live in commandContext so
// subcommands only deal with presentation.
package main

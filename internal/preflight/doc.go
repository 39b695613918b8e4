// Package preflight runs readiness checks before a sequence starts: the log
// directory is writable, collections are readable, the exec step's command
// resolves, and the configured scheduler and trace collector are reachable.
//
// Checks never fail hard; each returns a Result the CLI renders as a table.
package preflight

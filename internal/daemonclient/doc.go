// Package daemonclient talks to a running batchcursor daemon over its HTTP
// API and subscribes to its websocket progress stream.
package daemonclient

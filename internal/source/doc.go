// Package source resolves a collection key into the ordered item snapshot the
// iteration driver walks. Snapshots are recomputed on every call and never
// cached, so the driver can notice when a collection shrinks or grows.
package source

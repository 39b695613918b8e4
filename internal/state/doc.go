// Package state tracks where each collection's sequence currently stands.
//
// A Record holds the cursor (Offset), the snapshot size it was computed
// against (Total), and the lifecycle Status. Records are keyed by the
// normalized collection key produced by NormalizeKey and are created lazily
// on first access. Two Store implementations are provided: MemoryStore, a
// mutex-guarded map, and SQLiteStore, an in-memory SQLite database. Neither
// survives a process restart.
//
// Collection-change detection is tracked per lane: a lane remembers the last
// collection key it processed so a caller pointing the same lane at a new
// collection can be restarted from the beginning.
package state

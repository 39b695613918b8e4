package testsupport

import (
	"testing"

	"batchcursor/internal/config"
	"batchcursor/internal/state"
)

// MustOpenStore opens the state store named by cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) state.Store {
	t.Helper()

	store, err := state.Open(cfg.Iteration.StateBackend)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"simq/internal/config"
	"simq/internal/queue"
)

// NewQueue returns a store over a fresh temp directory.
func NewQueue(t testing.TB) *queue.Store {
	t.Helper()
	return queue.New(t.TempDir())
}

// MustOpenStore opens the configured queue directory for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	return store
}

// SeedJobs writes a valid descriptor for each id. The command echoes the
// id so tests can tell launches apart.
func SeedJobs(t testing.TB, store *queue.Store, ids ...int64) {
	t.Helper()

	for _, id := range ids {
		if err := store.Write(id, "/tmp", []string{"echo", queue.FormatID(id)}); err != nil {
			t.Fatalf("seed job %d: %v", id, err)
		}
	}
}

// WriteRaw writes content verbatim to name inside the queue directory,
// bypassing descriptor validation.
func WriteRaw(t testing.TB, store *queue.Store, name, content string) {
	t.Helper()

	path := filepath.Join(store.Dir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

package testsupport

import (
	"context"
	"testing"

	"vignette/internal/config"
	"vignette/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates an uploaded job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, filename string) *queue.Job {
	t.Helper()

	job, err := store.Create(context.Background(), queue.NewJobParams{
		Filename:        filename,
		AudioPath:       "/tmp/" + filename,
		FileSize:        1024,
		DurationSeconds: 120,
		Options:         queue.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"vignette/internal/config"
	"vignette/internal/queue"
)

// writeTestConfig writes a config file backed by per-test temp directories
// and returns its path together with the loaded configuration.
func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()

	base := t.TempDir()
	cfgPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
staging_dir = %q
library_dir = %q
log_dir = %q
`,
		filepath.Join(base, "staging"),
		filepath.Join(base, "library"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfgPath, cfg
}

// runCommand executes the CLI with the given arguments against cfgPath and
// captures combined output.
func runCommand(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// seedJob creates an uploaded job in the queue backing cfg. When failed is
// true the job is moved to the failed state with an error message.
func seedJob(t *testing.T, cfg *config.Config, filename string, failed bool) *queue.Job {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	job, err := store.Create(ctx, queue.NewJobParams{
		Filename:        filename,
		AudioPath:       filepath.Join(cfg.Paths.StagingDir, filename),
		FileSize:        2048,
		DurationSeconds: 90,
		Options:         queue.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}

	if failed {
		job.SetFailed("transcription failed: upstream timeout")
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("store.Update: %v", err)
		}
	}
	return job
}

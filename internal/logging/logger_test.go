package logging_test

import (
	"context"
	"path/filepath"
	"testing"

	"vignette/internal/logging"
	"vignette/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello")
}

func TestWithContextAddsJobFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-123")
	ctx = services.WithStage(ctx, "transcription")

	fields := logging.ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 context fields, got %d", len(fields))
	}
	if fields[0].Key != logging.FieldJobID || fields[1].Key != logging.FieldStage {
		t.Fatalf("unexpected field keys: %v", fields)
	}
}

func TestWithContextNilLoggerFallsBack(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("noop")
}

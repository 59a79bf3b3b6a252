package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// Scanner sizing for daemon log lines. Structured entries stay well
	// under a megabyte.
	scanBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024

	// How often a following tail re-checks the file for appended lines.
	followPollEvery = 250 * time.Millisecond
)

// TailOptions controls a single Tail call. A negative Offset requests the
// last Limit lines of the file; a non-negative Offset reads forward from
// that byte position. With Follow set and Wait positive, an empty read
// blocks until new lines arrive or Wait elapses.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the byte offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads daemon log lines from path per opts. A missing file is not an
// error: the result is empty with a zero offset, so callers can poll a log
// that has not been created yet.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		result.Offset = 0
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	if opts.Offset < 0 {
		result.Lines, result.Offset, err = tailEnd(path, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			start = info.Size()
		}
		result.Lines, result.Offset, err = readAfter(path, start)
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}

	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return awaitLines(ctx, path, result.Offset, opts.Wait)
	}
	return result, nil
}

// tailEnd returns the last limit lines of the file and the end-of-file
// offset. With limit <= 0 it only reports the offset.
func tailEnd(path string, limit int) ([]string, int64, error) {
	lines, offset, err := readAfter(path, 0)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		return nil, offset, nil
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, offset, nil
}

// readAfter reads complete lines starting at the given byte offset and
// returns them with the offset of the first unread byte.
func readAfter(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, next, nil
}

// awaitLines polls the file until new lines appear past offset, wait
// elapses, or ctx is cancelled.
func awaitLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(followPollEvery)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := readAfter(path, offset)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}

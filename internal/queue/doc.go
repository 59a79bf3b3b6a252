// Package queue persists pipeline jobs in SQLite and is the single source of
// truth polled by callers. Job status moves strictly forward through the
// stage lifecycle; terminal jobs never revert, which is what keeps polling
// monotonic for any cadence.
package queue

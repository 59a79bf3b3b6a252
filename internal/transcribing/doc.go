// Package transcribing implements the first pipeline stage: the source audio
// is split into bounded segments, each segment is transcribed by the
// speech-to-text collaborator under a worker limit, and the per-segment
// results are rebased onto the global timeline and merged.
package transcribing

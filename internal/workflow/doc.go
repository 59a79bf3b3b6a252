// Package workflow drives jobs through the pipeline. A single manager polls
// the queue for jobs sitting at a stage boundary, claims them by moving them
// into the matching processing status, and runs the registered stage handler
// under a heartbeat. Concurrency is bounded by configuration; the manager is
// the only component that mutates job status.
package workflow

// Package notifications publishes job lifecycle events to an ntfy topic.
//
// The workflow manager publishes an event when a job reaches a terminal
// state. When no topic is configured a noop service is returned, so callers
// never need to branch on whether notifications are enabled.
package notifications

// Package api exposes transport-friendly views over the queue and artifact
// stores. Callers (the CLI today, an HTTP surface tomorrow) submit uploads,
// poll job status, and fetch finished artifacts through these services
// without touching persistence types directly.
package api

// Package analyzer extracts visual cues from a transcript. When a language
// model collaborator is configured it requests cue candidates per transcript
// window as JSON-only chat completions; otherwise a local heuristic scans the
// transcript for topic shifts and emphasized phrases.
package analyzer

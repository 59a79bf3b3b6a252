// Package artifacts manages the per-job working directory: segment audio,
// transcripts, analysis output, downloaded visuals, and the final video, plus
// the JSON metadata documents describing each. Writes are append-only until a
// job is sealed after composition; a sealed job's artifacts are immutable.
package artifacts

// Package transcriber wraps the speech-to-text collaborator plus the ffmpeg
// invocations that feed it. Segments are extracted to mono 16kHz WAV files
// and submitted individually so the collaborator always receives
// bounded-size inputs.
package transcriber

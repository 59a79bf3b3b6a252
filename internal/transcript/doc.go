// Package transcript provides the audio segmentation and transcript merge
// primitives used by the transcription stage. Segments partition the source
// audio into bounded slices for the speech-to-text collaborator; entries
// carry timestamped text rebased onto the global audio timeline.
package transcript

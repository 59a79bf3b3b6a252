// Package encoder turns a composition timeline plus the source audio into a
// single muxed video via ffmpeg: one clip per timeline segment, concatenated
// and muxed with the audio track at a fixed resolution and frame rate.
package encoder

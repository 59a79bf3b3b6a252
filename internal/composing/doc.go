// Package composing implements the final pipeline stage: the resolved visual
// manifest is laid out on a timeline covering the full audio duration, the
// encoder renders and muxes the video, and the job's artifact directory is
// sealed against further writes.
package composing

// Package storyboard holds the visual planning types shared by the analysis,
// generation, and composition stages: cues extracted from the transcript,
// candidate images resolved for those cues, and the timeline handed to the
// encoder. All construction rules here are pure; stages own the IO.
package storyboard

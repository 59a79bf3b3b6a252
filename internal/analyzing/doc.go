// Package analyzing implements the content analysis stage: the merged
// transcript is scanned for moments worth illustrating, producing a budgeted,
// timestamp-ordered cue list for the generation stage. A configured model
// collaborator does the scanning when available; otherwise a local heuristic
// stands in.
package analyzing

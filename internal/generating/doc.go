// Package generating implements the visual generation stage: every cue is
// resolved concurrently against the search and generation collaborators, the
// best candidate per cue is selected and downloaded, and the resolved set is
// persisted in timestamp order for composition.
package generating

// Package imagegen wraps the image and clip generation collaborator.
// Generated visuals follow the same candidate contract as search results so
// the selection rule can compare them directly.
package imagegen

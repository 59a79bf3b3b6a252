// Package daemon ties the queue store and workflow manager into a single
// lifecycle with flock-based locking so only one pipeline daemon processes a
// staging directory at a time.
package daemon

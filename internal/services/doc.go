// Package services holds the shared plumbing for external collaborator
// clients: the error taxonomy used to classify collaborator failures and the
// context annotations that thread job identity into logs.
package services

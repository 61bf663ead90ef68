// Package testutil contains fakes and builders shared by tests: a scripted
// language model, failing collaborators, an event recorder and a catalog
// builder. They are not intended for production usage.
package testutil

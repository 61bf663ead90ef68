// Package memory contains the memory collaborator. Service fronts a remote
// core.Memory backend (see memory/redis) and degrades to a process-local
// LocalStore the first time the remote fails. The switch is explicit: Mode
// reports which store serves calls, OnTransition observes changes and
// Reconnect returns to the remote once it answers again.
package memory

// Package core defines the shared domain records of the swarm (sessions,
// thought-graph nodes and edges, conversational turns, chat messages) and the
// narrow collaborator contracts the orchestrator depends on: Storage, Memory
// and LanguageModel. Concrete implementations live in sibling packages
// (storage/..., memory, model/...) and are injected at wiring time.
package core

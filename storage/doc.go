// Package storage groups the Storage collaborator implementations. The
// contracts (core.Storage, core.GraphReader, core.NodeDeactivator) live in
// core; pick a backend at wiring time:
//
//   - storage/inmemory: volatile, process local, for tests and demos
//   - storage/sqlite: a single SQLite file (modernc.org/sqlite, no cgo)
package storage

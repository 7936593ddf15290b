// Package sqlite provides a SQLite-backed implementation of all storage
// interfaces using the pure-Go modernc.org/sqlite driver. It is suitable for
// single-node deployments that need persistence across restarts.
package sqlite

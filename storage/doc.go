// Package storage provides interfaces and domain models for persisting OAuth
// clients, authorization grants, and access tokens.
//
// The storage package defines the core storage interfaces used throughout the
// oauth-server library:
//   - ClientStore: registered client applications (read-mostly for the engine)
//   - GrantStore: short-lived, single-use authorization codes
//   - TokenStore: issued bearer tokens
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage for development and testing
//   - storage/sqlite: SQLite-backed persistent storage for single-node deployments
package storage

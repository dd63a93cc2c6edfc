// Package identity resolves asserted identities to internal user records.
//
// # Overview
//
// The validator hands this package a normalized Profile; the Resolver finds
// the matching User by subject identifier or provisions one on first login
// (find-or-create). Two store implementations are provided:
//
//   - MemoryStore: isolated in-memory store for the demo server and tests
//   - PostgresStore: production store with a unique index on subject_id
//
// # Concurrency
//
// Concurrent first logins for the same subject must never produce two users.
// The Resolver serializes find-or-create per subject with singleflight, and
// every Store must additionally enforce uniqueness at create time so races
// across processes are caught (the resolver falls back to a lookup when a
// create reports ErrDuplicateSubject).
package identity

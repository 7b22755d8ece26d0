// Package store provides SQLite-backed durable storage for offline submissions.
//
// The store holds two collections:
//   - pending: submissions captured locally and not yet acknowledged (key: id)
//   - synchronized: submissions acknowledged by the remote (key: id,
//     secondary index on synced_at)
//
// # Critical Patterns
//
// Mutually exclusive membership
//   - A submission id lives in exactly one collection at any instant
//   - Put rejects an id already present in the other collection
//   - MoveAtomically inserts and deletes inside one transaction, so an
//     interruption can never leave a record in both or neither collection
//
// Status follows membership
//   - CHECK constraints pin pending rows to status 'queued' with NULL
//     synced_at, and synchronized rows to 'synced' with a synced_at
//
// Additive schema versions
//   - PRAGMA user_version is the schema version
//   - Migrations only create tables and indexes, never drop or rewrite them
//   - v1: pending; v2: synchronized + idx_synchronized_synced_at
//
// # Connection lifecycle
//
// A Connector owns every live connection to one database file. Open returns
// the explicit event EventOpened, or EventBlocked with a *Error when an
// upgrade is obstructed by another live connection. Obstructing connections
// receive EventBlocking on their Events channel and release themselves
// unless they were opened WithHoldOnBlocking. Reset destroys the file and
// invalidates live handles; ForceReset does so even past held connections.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks before reporting BLOCKED
//   - _txlock=immediate: every transaction takes the write lock up front
package store

// Package record defines the submission record shared by the store, the
// submission factory, the sync engine and the remote client.
//
// This package contains type definitions and small pure helpers only. It
// imports nothing internal, so every other package can depend on it.
//
// Key constraints:
//   - ID is assigned once at creation and never changes
//   - Status is derived from collection membership; only Queued and Synced
//     are ever persisted
//   - SyncedAt is set if and only if Status is Synced, and never precedes CreatedAt
//   - JSON tags use camelCase to match the batch wire format
package record

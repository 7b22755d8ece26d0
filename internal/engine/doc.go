// Package engine implements the batch synchronization protocol that moves
// submissions from pending to synchronized.
//
// # Protocol
//
//  1. Snapshot S = all of pending. Empty S returns {synced: 0} with no
//     network call.
//  2. Push S as exactly one batch.
//  3. Accepted: move ids(S) to synchronized in one transaction, stamping
//     syncedAt; return {synced: |S|}.
//  4. Rejected or unreachable: change nothing and return the error.
//
// There is no partial acknowledgement and no automatic retry. The caller
// decides when to try again (connectivity restored, manual trigger).
//
// # Concurrency
//
// At most one Sync is in flight per Engine. Overlapping calls queue on a
// single slot and each reads its own snapshot once it runs, so two calls
// can never push or move the same snapshot. The push runs under a bounded
// timeout that ends in a retryable transport failure. Records created while
// a push is outstanding are not in its snapshot and stay in pending.
package engine

// Package store provides SQLite-backed storage for the development rule
// backend.
//
// Two tables:
//   - rules: the latest accepted document per rule index, with a revision
//     that only moves when the content hash changes
//   - submissions: an append-only journal of every PUT, accepted or not,
//     with the issues that were reported
//
// # Ordering
//
// Every write is stamped with a logical seq (MAX(seq)+1 inside the write
// transaction). Reads order by seq, then id, so results are identical
// across runs.
//
// # Settings
//
// Open sets journal_mode=WAL, synchronous=NORMAL, busy_timeout=5000 and
// foreign_keys=ON, and fails if SQLite reports any other value. Schema
// changes are numbered migrations tracked in PRAGMA user_version.
//
// Content hashes are computed by the caller with ir.ElementHash.
package store

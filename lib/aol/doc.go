// Package aol implements the append-only operation log that makes sKV
// state durable: every mutating command is written to a plain file as one
// RESP array frame, the file is replayed at startup to reconstruct the
// map, and a background rewrite, started on request, replaces the file
// with a minimal reconstruction of the current state.
//
// The package focuses on:
//   - Write-through appending with three fsync cadences (always,
//     everysec, no) trading durability against throughput
//   - Crash-tolerant replay: a truncated tail, the signature of a crash
//     mid-write, terminates replay with a logged warning instead of
//     failing startup
//   - Snapshot-based rewrite: a detached copy of the live map is
//     serialized to <path>.tmp, fsynced and atomically renamed over the
//     live log, which the owner then reopens for appending
//
// Durability contract: by the time a mutating reply reaches the client,
// the corresponding record has at least been flushed to the OS. With
// SyncAlways it has also been fsynced; with SyncEverySec the fsync worker
// bounds the loss window to roughly one second; with SyncNo the window is
// whatever the OS allows.
//
// Concurrency: Append, Sync and Close serialize on an internal mutex.
// The everysec worker only ever calls fsync on the log fd; the rewrite
// goroutine works on the snapshot and a temp file, never on shared state.
// Rewrite completion is picked up non-blockingly via PollRewrite, which
// the server calls from its maintenance tick.
package aol

// Package store defines the storage contract of sKV: a mapping from
// byte-string keys to value records with per-key time-to-live, access
// tracking for approximate-LRU eviction, and point-in-time snapshots.
//
// The package focuses on:
//   - A unified interface (IStore) for the key–value operations the
//     command layer and the append log replay are built on
//   - TTL semantics shared by all implementations: a record whose expiry
//     has passed is semantically absent and is purged by the next access
//   - Snapshot records used by the append log rewrite
//
// Key Components:
//
//   - IStore Interface: The core abstraction. All mutating and reading
//     operations run to completion atomically with respect to each other;
//     implementations guarantee single-owner semantics for the map even
//     when called from multiple goroutines.
//
//   - Record: A detached point-in-time copy of one entry, as returned by
//     Snapshot(). Snapshot results share no memory with the live map, so
//     they can be serialized by a background worker while the store keeps
//     serving writes.
//
//   - Encoding: The informational encoding hint deduced for every stored
//     value (integer, short string, raw). The hint never changes
//     observable behavior; it exists for introspection and statistics.
//
// Implementations:
//
//	The memstore package (github.com/ValentinKolb/sKV/lib/store/memstore)
//	provides the in-memory engine used by the server: a mutex-owned map
//	with lazy plus adaptive active expiration and sampled LRU eviction
//	bounded by a configurable key limit.
package store

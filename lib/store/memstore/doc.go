// Package memstore provides the in-memory engine behind the sKV store
// interface: one map guarded by one mutex, so the keyspace has a single
// logical owner and every operation is atomic relative to every other.
//
// Time handling follows the lazy-plus-active model:
//
//   - Lazy deletion: any read that touches an expired record purges it
//     and reports the key as absent.
//   - Active expiration: ActiveExpire() runs adaptive sampling sweeps
//     (bounded per pass, repeated while the expired ratio stays high) so
//     keys nobody reads still get reclaimed. The server drives this from
//     its maintenance tick.
//
// When a key limit is configured, each insert first evicts the
// least-recently-used record among a small random sample. With the
// default sample size of 5 the victim agrees with true LRU in roughly
// 95% of cases, which is the intended accuracy/cost trade-off.
//
// Snapshot() produces a detached copy of all non-expired records for the
// append log rewrite; the copy shares no memory with the live map.
package memstore

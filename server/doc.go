// Package server ties the sKV components together: it accepts TCP
// connections, decodes pipelined RESP requests from per-connection read
// buffers, dispatches them against the store, appends successful writes
// to the operation log and batches replies into per-connection write
// buffers.
//
// Execution model: command execution is intentionally serialized. Every
// dispatch-plus-log step runs under one server-wide mutex, so the store
// has a single logical owner, each command is atomic with respect to all
// others, and records enter the append log in exactly the order they
// were applied. Connection goroutines only parallelize socket I/O.
//
// A maintenance goroutine ticks once per second, driving the store's
// active expiration sweep and polling for append-log rewrite completion;
// both are bounded so the tick never stalls connection handling for
// long.
//
// Per-connection failure policy: a malformed frame closes the connection
// without a reply; command-level failures are error frames on a healthy
// connection; a send failure drops the connection along with any
// buffered replies.
package server

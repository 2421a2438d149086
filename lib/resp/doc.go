// Package resp implements the RESP wire protocol used by sKV: a typed
// frame format with five kinds (simple string, error, integer, bulk
// string and array) where every frame is terminated by CRLF.
//
// The package focuses on:
//   - A single tagged Frame type covering all five frame kinds
//   - A restartable streaming decoder for partially received buffers
//   - A deterministic, allocation-friendly append-style encoder
//
// Key Components:
//
//   - Frame: The polymorphic frame value. The Kind field selects which of
//     the payload fields is meaningful. Nil bulk strings and nil arrays
//     are represented by nil Bulk/Array slices ("$-1\r\n" / "*-1\r\n").
//
//   - Decode: Parses exactly one frame from a byte buffer at a given
//     offset. If the buffer holds fewer bytes than a full frame, Decode
//     returns ErrIncomplete and the caller retries after reading more
//     data; the offset semantics make the decoder restartable across
//     socket reads, which is what enables request pipelining.
//
//   - AppendFrame / Encode: Produce the canonical byte sequence for a
//     frame. Encoding is length-exact so callers can batch replies into
//     one write buffer.
//
// Error handling distinguishes two failure classes: ErrIncomplete (more
// bytes needed, not an error condition) and ErrProtocol (structurally
// invalid input, the connection must be closed). Both are sentinel
// errors and should be tested with errors.Is.
package resp

// Package protocol owns the wire contract and parsing primitives.
//
// Ownership boundary:
// - message header/body framing
// - read-error classification (per-stream vs connection-fatal)
// - request/response payload envelopes
package protocol

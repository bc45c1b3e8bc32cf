// Package link owns the full-duplex connection engine.
//
// Ownership boundary:
// - socket splitting into independently driven read/write directions
// - writer loop draining outbound envelopes
// - reader loop racing message parses against shutdown
// - exactly-once completion of every submitted envelope
//
// Protocol policy (dispatch, correlation, error classification beyond the
// wire taxonomy) lives in the delegates, never here.
package link

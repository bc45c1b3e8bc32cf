// Package server owns the server-role delegate pair and the accept loop.
//
// Ownership boundary:
// - method registry and request dispatch
// - per-connection response queue feeding the engine's writer
// - fleet-wide shutdown propagation to every live connection
package server

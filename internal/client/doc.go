// Package client owns the client-role delegate pair and the Call surface.
//
// Ownership boundary:
// - outbound call queue feeding the engine's writer
// - pending-call correlation table shared by both delegates
// - per-call outcome propagation (write result, response, failure)
package client

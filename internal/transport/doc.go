// Package transport owns the byte-stream boundary under the connection
// engine.
//
// Ownership boundary:
// - Socket abstraction and read/write half splitting
// - tcp/unix dial and listen helpers
// - websocket stream adapter
package transport

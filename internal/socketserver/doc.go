// Package socketserver runs the two TCP listeners of a tokengate server and
// hands each accepted connection to the handler for the port it arrived on.
//
// # Architecture
//
// One accept goroutine per listener pushes connections into a shared queue.
// A single dispatch loop takes connections off the queue and picks the handler
// by the connection's local port:
//
//   - the issuing port runs a challenge.Issuer
//   - the validating port runs a challenge.Validator
//
// # Dispatch modes
//
// In serial mode (the default) the dispatch loop runs each handler to
// completion before taking the next connection. A client that connects and
// never sends stalls every other client unless a read timeout is configured.
//
// In concurrent mode each connection gets its own goroutine, bounded by
// MaxConnections. Connections above the bound are closed unserved.
//
// # Failure handling
//
// A handler error or panic closes that one connection; the loop keeps
// accepting. Nothing is ever written back to a client whose request failed.
// Only a failure to bind either listener is fatal, and in that case any
// listener already bound is closed before Start returns.
package socketserver

// Package transport defines the wire-facing types of the simulator session
// protocol: the opaque structured Message exchanged with user callbacks, the
// protocol events a brain service emits, and the Transport interface the
// session client drives. An HTTP implementation lives in http.go; tests use
// in-memory fakes.
package transport

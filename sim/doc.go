// Package sim provides the client-side session driver for a remote brain
// (training/prediction) service.
//
// # Reading Guide
//
// Start with these three files to understand the session core:
//   - callbacks.go: the Simulation contract user code implements
//   - simulator.go: the Simulator facade and the episode/iteration loop
//   - session.go: connection lifecycle, train/predict mode, reconnect backoff
//
// # Architecture
//
// The sim package holds the state machine and the public surface;
// sub-packages hold the collaborators:
//   - sim/transport/: opaque structured messages, protocol events, and the
//     Transport interface with its HTTP implementation
//   - sim/record/: schema-filtered per-iteration telemetry and its sinks
//
// One Simulator drives one logical session. Run advances the session by
// exactly one protocol exchange and returns true while the session is alive;
// callers invoke it in a tight loop:
//
//	for s.Run() {
//	}
//
// Run must not be called concurrently with itself on the same Simulator.
package sim

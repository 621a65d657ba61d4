// Package testing provides an in-memory media engine for deterministic
// testing of call flows.
//
// # Overview
//
// SimulatedMediaEngine implements call.MediaEngine without any network
// operations. Offers and answers are opaque tokens that identify the
// session that produced them, so two managers sharing one engine negotiate
// directly with each other. This keeps call tests fast and reproducible
// while the signaling path still runs over real TCP sockets.
//
// Sessions pair only within one engine: an offer or answer from another
// SimulatedMediaEngine is rejected with ErrUnknownToken. Peers in separate
// processes cannot share an engine, so the simulation connects calls only
// inside a single process.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): sessions connect as soon as the offerer
//     applies the answer. Data channel messages are delivered in-memory.
//
//   - Real (media package): sessions are WebRTC peer connections with an
//     audio transceiver and a data channel.
//
// # Usage
//
//	engine := testing.NewSimulatedMediaEngine()
//	caller, _ := call.NewManager(call.ManagerConfig{MediaEngine: engine, ...})
//	callee, _ := call.NewManager(call.ManagerConfig{MediaEngine: engine, ...})
//
//	// Inspect what the sessions did
//	for _, op := range engine.Operations() {
//	    t.Log(op.SessionID, op.Op)
//	}
//
// Failures are injected with FailNextSession, FailNextOffer and
// SimulateState.
//
// # Manual Clock
//
// ManualClock implements call.TimeProvider. Ring and disconnect timers
// scheduled through it fire only when a test calls Advance:
//
//	clock := testing.NewManualClock(time.Now())
//	callee, _ := call.NewManager(call.ManagerConfig{TimeProvider: clock, ...})
//	clock.Advance(call.DefaultRingTimeout)
//
// # Operation Log
//
// Every session operation is appended to a log. Each OperationRecord
// contains:
//
//   - SessionID: The session that performed the operation
//   - Op: One of the Op* constants
//   - Size: Payload size in bytes for data operations
//   - Timestamp: Unix nanoseconds when the operation occurred
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines. Session
// handlers are invoked without internal locks held.
package testing

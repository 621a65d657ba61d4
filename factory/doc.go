// Package factory creates call.MediaEngine implementations, switching
// between the in-memory simulation and the WebRTC engine without changing
// consuming code.
//
// # Configuration
//
// The factory supports configuration via environment variables:
//   - PEERCALL_MEDIA_SIMULATION: "true" or "false" to enable simulation mode
//   - PEERCALL_ICE_SERVERS: comma separated STUN/TURN URLs
//
// # Usage
//
//	f := factory.NewMediaEngineFactory()
//	engine, err := f.CreateMediaEngine(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Simulation Scope
//
// Every CreateMediaEngine call in simulation mode returns a new
// SimulatedMediaEngine, and simulated sessions only pair with sessions of the
// same engine. Two processes running with PEERCALL_MEDIA_SIMULATION=true
// therefore cannot connect a call: the callee's CreateAnswer fails with
// testing.ErrUnknownToken. To simulate both ends, build one engine and pass
// it to each peer through peercall.Options.MediaEngine, as
// examples/loopback_call does.
//
// # Mode Switching
//
// Integration tests can switch the default at runtime:
//
//	f.SwitchToSimulation()
//	f.SwitchToReal()
package factory

// Package peercall implements peer-to-peer encrypted voice calls between
// contacts identified by Ed25519 public keys.
//
// Signaling runs over direct TCP connections: every packet is a 4-byte
// big-endian length followed by a crypto envelope that is signed by the
// sender and sealed to the recipient. Media is negotiated with a one-shot
// WebRTC offer/answer exchange over that socket. This package provides the
// main API facade that wires together the encrypted database, the signaling
// listener, the call manager and the media engine.
//
// # Getting Started
//
//	options := peercall.NewOptions()
//	options.DataDir = "/var/lib/peercall"
//	options.Password = []byte("correct horse")
//
//	pc, err := peercall.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pc.Stop()
//
//	pc.OnIncomingCall(func(c *call.Call) {
//	    c.Accept(context.Background())
//	})
//
//	if err := pc.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := pc.Call(ctx, "bob")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	state, _ := c.Wait(ctx)
//
// # Core Types
//
//   - [PeerCall]: Main API facade
//   - [Options]: Configuration options for creating a new instance
//
// # Contacts
//
// Contacts are exchanged as JSON (see database.ExportContact). The own
// contact lists the addresses other peers should dial:
//
//	own, _ := pc.OwnContact()
//	data, _ := database.ExportContact(own)
//
// # Subpackages
//
//   - crypto: identity keys, the crypto envelope and database encryption
//   - transport: packet framing, the TCP listener and the dialer
//   - database: contacts, call history and settings
//   - call: the call state machine and signaling
//   - media: the pion/webrtc media engine
//   - testing: an in-memory media engine for tests
//   - limits: size limits shared by the other packages
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Callbacks run on a
// per-call goroutine in the order the events happened.
package peercall

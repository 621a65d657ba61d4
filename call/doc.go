// Package call implements direct peer-to-peer calls: the encrypted signaling
// exchange over a TCP socket and the call state machine that drives a media
// session through offer, ringing, answer and hangup.
//
// # Signaling
//
// Each signaling message is a JSON object carried in one length-prefixed
// packet and wrapped in the crypto envelope (signed by the sender, sealed to
// the recipient):
//
//	{"action":"call","offer":"<sdp>"}        caller -> callee
//	{"action":"ringing"}                     callee -> caller
//	{"action":"connected","answer":"<sdp>"}  callee -> caller
//	{"action":"dismissed"}                   either side
//	{"action":"ping"} / {"action":"online"}  presence check
//
// Once the media session is up the socket is closed. Hangup and camera
// changes then travel as {"action":"status_change","status":...} over the
// media session's data channel.
//
// # Call States
//
//	Waiting -> Connecting -> Ringing -> Connected -> Ended
//	              |            |           |
//	              +------------+-----------+--> Dismissed | Error | Ended
//
// Dismissed, Ended and Error are terminal. Every accepted transition is
// reported to the state callback; callbacks of one call run in order on a
// goroutine owned by that call and never under the call lock.
//
// # Manager
//
// The Manager owns at most one active call. It places outgoing calls and
// serves incoming connections handed over by a transport.Listener:
//
//	m, err := call.NewManager(call.ManagerConfig{
//	    KeyPair:     db.KeyPair(),
//	    Contacts:    db,
//	    Events:      db,
//	    MediaEngine: media.NewEngine(media.EngineConfig{}),
//	})
//	m.OnIncomingCall(func(c *call.Call) { _ = c.Accept(context.Background()) })
//	l, err := transport.Listen(":10001", m.HandleConn, transport.DefaultListenerOptions())
//
//	c, err := m.Call(ctx, contact)
//	state, err := c.Wait(ctx)
//
// Every finished call leaves exactly one database.Event in the call history,
// except for calls from blocked contacts which are dropped silently.
package call

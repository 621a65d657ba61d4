// Package transport carries peercall signaling packets over TCP.
//
// # Framing
//
// Every packet is a 4-byte big-endian length followed by that many payload
// bytes. [WritePacket] emits prefix and payload as a single write and
// [ReadPacket] reads exactly the announced length, so partial reads on slow
// links are handled. Lengths of zero or above the configured maximum are
// rejected before the payload buffer is allocated.
//
// # Connections
//
// [PacketConn] wraps a net.Conn with per-operation deadlines and serialized
// writes:
//
//	pc := transport.NewPacketConn(conn)
//	pc.SetTimeouts(5*time.Second, 5*time.Second)
//	if err := pc.WritePacket(payload); err != nil {
//	    return err
//	}
//	reply, err := pc.ReadPacket()
//
// # Listener
//
// [Listen] accepts connections and hands each to a [ConnHandler] on its own
// goroutine. Connections from a remote IP that exceeds its rate budget are
// closed immediately:
//
//	l, err := transport.Listen(":10001", manager.HandleConn, transport.DefaultListenerOptions())
//	defer l.Close()
//
// # Dialing
//
// A contact may be reachable under several addresses (IPv4, IPv6 link-local
// with zone, hostnames). [DialAny] tries them in order and reports which one
// answered.
//
// # Addresses
//
// [NormalizeAddress] turns user-entered addresses into dialable host:port
// strings. [MACToLinkLocal] and [LinkLocalToMAC] convert between a hardware
// address and its EUI-64 IPv6 link-local address.
package transport

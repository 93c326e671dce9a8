package model

import "net"

// Session represents one connected client's control stream (in-memory only).
// RemoteIP is the IP component of the stream connection's remote endpoint;
// UDPAddr is learned from the first valid voice datagram, not from the
// stream handshake.
type Session struct {
	ID            uint32
	RemoteIP      net.IP
	Username      string // empty until login
	Channel       string // empty until login
	Authenticated bool
	VoiceToken    uint32 // issued on login, bound to voice frames in token mode
	UDPAddr       *net.UDPAddr
}

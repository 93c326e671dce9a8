package server

import (
	"net"
	"testing"
)

func tcpAddr(ip string, port int) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	r := NewSessionRegistry()
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		sess, err := r.Register(tcpAddr("10.0.0.1", 4000+i))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if sess.ID == 0 {
			t.Fatal("Register assigned session ID 0")
		}
		if seen[sess.ID] {
			t.Fatalf("Register reused session ID %d", sess.ID)
		}
		seen[sess.ID] = true
	}
	if r.Count() != 100 {
		t.Errorf("Count = %d, want 100", r.Count())
	}
}

func TestAuthenticateAndSnapshot(t *testing.T) {
	r := NewSessionRegistry()
	sess, err := r.Register(tcpAddr("10.0.0.1", 4000))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.Authenticated {
		t.Error("fresh session is authenticated")
	}

	r.Authenticate(sess.ID, "alice", 42)
	got, ok := r.Snapshot(sess.ID)
	if !ok || !got.Authenticated || got.Username != "alice" || got.VoiceToken != 42 {
		t.Errorf("Snapshot after Authenticate = %+v, ok=%v", got, ok)
	}
	if !got.RemoteIP.Equal(net.ParseIP("10.0.0.1")) {
		t.Errorf("RemoteIP = %v, want 10.0.0.1", got.RemoteIP)
	}
}

func TestLookupByVoiceSource(t *testing.T) {
	r := NewSessionRegistry()
	a, _ := r.Register(tcpAddr("10.0.0.1", 4000))
	if _, err := r.Register(tcpAddr("10.0.0.2", 4000)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Authenticate(a.ID, "alice", 0)

	got, ok := r.LookupByVoiceSource(net.ParseIP("10.0.0.1"))
	if !ok || got.ID != a.ID {
		t.Errorf("LookupByVoiceSource(10.0.0.1) = %+v, ok=%v", got, ok)
	}
	// Unauthenticated sessions never match.
	if _, ok := r.LookupByVoiceSource(net.ParseIP("10.0.0.2")); ok {
		t.Error("LookupByVoiceSource matched unauthenticated session")
	}
	if _, ok := r.LookupByVoiceSource(net.ParseIP("10.0.0.3")); ok {
		t.Error("LookupByVoiceSource matched unknown IP")
	}
}

func TestValidateVoiceToken(t *testing.T) {
	r := NewSessionRegistry()
	sess, _ := r.Register(tcpAddr("10.0.0.1", 4000))
	r.Authenticate(sess.ID, "alice", 99)

	if _, ok := r.ValidateVoiceToken(sess.ID, 99); !ok {
		t.Error("valid token rejected")
	}
	if _, ok := r.ValidateVoiceToken(sess.ID, 98); ok {
		t.Error("wrong token accepted")
	}
	if _, ok := r.ValidateVoiceToken(sess.ID+1, 99); ok {
		t.Error("unknown session accepted")
	}

	// A zero token (compat-mode login) must never validate, even if a
	// client echoes the zero back.
	zero, _ := r.Register(tcpAddr("10.0.0.2", 4000))
	r.Authenticate(zero.ID, "bob", 0)
	if _, ok := r.ValidateVoiceToken(zero.ID, 0); ok {
		t.Error("zero token accepted")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := NewSessionRegistry()
	sess, _ := r.Register(tcpAddr("10.0.0.1", 4000))
	r.Authenticate(sess.ID, "alice", 0)

	got, removed := r.Remove(sess.ID)
	if !removed || got.Username != "alice" {
		t.Errorf("first Remove = %+v, removed=%v", got, removed)
	}
	if _, removed := r.Remove(sess.ID); removed {
		t.Error("second Remove reported removed=true")
	}
	if r.Count() != 0 {
		t.Errorf("Count after Remove = %d", r.Count())
	}
}

func TestSetVoiceEndpoint(t *testing.T) {
	r := NewSessionRegistry()
	sess, _ := r.Register(tcpAddr("10.0.0.1", 4000))

	ep := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5123}
	r.SetVoiceEndpoint(sess.ID, ep)
	got, _ := r.Snapshot(sess.ID)
	if got.UDPAddr == nil || got.UDPAddr.Port != 5123 {
		t.Errorf("UDPAddr = %v, want port 5123", got.UDPAddr)
	}
}

func TestBindVoiceEndpoint(t *testing.T) {
	r := NewSessionRegistry()
	sess, _ := r.Register(tcpAddr("10.0.0.1", 4000))

	first := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5123}
	if !r.BindVoiceEndpoint(sess.ID, first) {
		t.Fatal("first bind rejected")
	}
	if !r.BindVoiceEndpoint(sess.ID, &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5123}) {
		t.Error("rebind from the same address rejected")
	}
	if r.BindVoiceEndpoint(sess.ID, &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 5123}) {
		t.Error("bind from a different IP accepted")
	}
	if r.BindVoiceEndpoint(sess.ID, &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 6000}) {
		t.Error("bind from a different port accepted")
	}
	got, _ := r.Snapshot(sess.ID)
	if got.UDPAddr.Port != 5123 {
		t.Errorf("pinned endpoint changed: %v", got.UDPAddr)
	}
	if r.BindVoiceEndpoint(sess.ID+1, first) {
		t.Error("bind for unknown session accepted")
	}
}

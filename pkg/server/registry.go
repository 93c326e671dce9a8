package server

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/voclink/voclink/pkg/model"
)

// SessionRegistry tracks every live connection. Session IDs are random
// non-zero uint32s so they cannot be guessed from connection order.
//
// All accessors return value copies; the registry's own records are
// never handed out.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uint32]*model.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uint32]*model.Session)}
}

// Register creates a session for a new connection and returns a copy.
func (r *SessionRegistry) Register(remote net.Addr) (model.Session, error) {
	ip := remoteIP(remote)

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id, err := randomID()
		if err != nil {
			return model.Session{}, fmt.Errorf("server: session id: %w", err)
		}
		if _, taken := r.sessions[id]; taken {
			continue
		}
		sess := &model.Session{ID: id, RemoteIP: ip}
		r.sessions[id] = sess
		return *sess, nil
	}
}

// Authenticate marks a session as logged in. The voice token is zero
// when the relay runs in compat mode.
func (r *SessionRegistry) Authenticate(id uint32, username string, voiceToken uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.Username = username
		sess.Authenticated = true
		sess.VoiceToken = voiceToken
	}
}

// SetChannel records the channel a session currently occupies.
func (r *SessionRegistry) SetChannel(id uint32, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.Channel = channel
	}
}

// SetVoiceEndpoint records the UDP source address last seen for a
// session.
func (r *SessionRegistry) SetVoiceEndpoint(id uint32, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.UDPAddr = addr
	}
}

// BindVoiceEndpoint pins a session's voice endpoint to the first source
// address seen. Later frames from a different address are rejected, so
// a frame replayed from elsewhere cannot redirect the session's
// incoming voice stream.
func (r *SessionRegistry) BindVoiceEndpoint(id uint32, addr *net.UDPAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return false
	}
	if sess.UDPAddr == nil {
		sess.UDPAddr = addr
		return true
	}
	return sess.UDPAddr.IP.Equal(addr.IP) && sess.UDPAddr.Port == addr.Port
}

// Snapshot returns a copy of one session.
func (r *SessionRegistry) Snapshot(id uint32) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return *sess, true
}

// LookupByVoiceSource finds an authenticated session whose stream IP
// matches the given datagram source IP. With several sessions behind
// one IP the pick is arbitrary, which is why compat mode cannot work
// behind NAT.
func (r *SessionRegistry) LookupByVoiceSource(ip net.IP) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.sessions {
		if sess.Authenticated && sess.RemoteIP.Equal(ip) {
			return *sess, true
		}
	}
	return model.Session{}, false
}

// ValidateVoiceToken checks a token-mode frame header against the
// session it claims to be from.
func (r *SessionRegistry) ValidateVoiceToken(id, token uint32) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok || !sess.Authenticated || sess.VoiceToken == 0 || sess.VoiceToken != token {
		return model.Session{}, false
	}
	return *sess, true
}

// Remove deletes a session. It is idempotent: the second caller gets
// removed=false, which gates disconnect notifications to exactly once.
func (r *SessionRegistry) Remove(id uint32) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	delete(r.sessions, id)
	return *sess, true
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a copy of every session.
func (r *SessionRegistry) All() []model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, *sess)
	}
	return out
}

func randomID() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if id := binary.BigEndian.Uint32(b[:]); id != 0 {
			return id, nil
		}
	}
}

func remoteIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

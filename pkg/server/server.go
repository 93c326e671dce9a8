// Package server implements the group-communication relay: a TCP
// control plane carrying framed JSON messages, a UDP voice relay on
// control port + 1, and an optional WebSocket gateway speaking the
// same envelope.
package server

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voclink/voclink/pkg/store"
)

// Dependencies are the external collaborators a Server needs.
type Dependencies struct {
	Users store.UserStore
}

// Server ties the control plane, voice relay and channel state
// together. Create with New, start with Start or Run.
type Server struct {
	cfg      *Config
	users    store.UserStore
	sessions *SessionRegistry
	channels *ChannelDirectory
	metrics  *Metrics
	promReg  *prometheus.Registry
	handler  *controlHandler

	control net.Listener
	voice   *net.UDPConn
	wsLn    net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	promReg := prometheus.NewRegistry()
	s := &Server{
		cfg:      cfg,
		users:    deps.Users,
		sessions: NewSessionRegistry(),
		channels: NewChannelDirectory(cfg.Channels.DefaultChannel, cfg.Channels.MaxChannels),
		metrics:  NewMetrics(promReg),
		promReg:  promReg,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.handler = newControlHandler(s)
	return s
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *SessionRegistry { return s.sessions }

// Channels exposes the channel directory.
func (s *Server) Channels() *ChannelDirectory { return s.channels }

// ControlAddr returns the bound control listener address, or nil
// before Start.
func (s *Server) ControlAddr() net.Addr {
	if s.control == nil {
		return nil
	}
	return s.control.Addr()
}

// VoiceLocalAddr returns the bound voice relay address, or nil before
// Start.
func (s *Server) VoiceLocalAddr() *net.UDPAddr {
	if s.voice == nil {
		return nil
	}
	return s.voice.LocalAddr().(*net.UDPAddr)
}

// WebSocketAddr returns the bound WebSocket listener address, or nil
// if the gateway is disabled.
func (s *Server) WebSocketAddr() net.Addr {
	if s.wsLn == nil {
		return nil
	}
	return s.wsLn.Addr()
}

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voclink/voclink/pkg/crypto"
	"github.com/voclink/voclink/pkg/store"
)

// Run starts every listener and blocks until SIGINT or SIGTERM.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	s.Shutdown()
	return nil
}

// Start seeds the admin user and default channel, then brings up the
// control listener, the voice relay and the optional gateways.
func (s *Server) Start() error {
	if s.users == nil {
		return fmt.Errorf("server: user store dependency is required")
	}
	if err := s.seedAdmin(); err != nil {
		return err
	}
	s.channels.EnsureDefault(s.cfg.Admin.Username)

	if err := s.StartControl(); err != nil {
		s.Shutdown()
		return fmt.Errorf("server: control listener: %w", err)
	}
	if err := s.StartVoice(); err != nil {
		s.Shutdown()
		return fmt.Errorf("server: voice relay: %w", err)
	}
	if err := s.StartWebSocket(); err != nil {
		s.Shutdown()
		return fmt.Errorf("server: websocket gateway: %w", err)
	}
	s.startMetricsHTTP()

	slog.Info("server running",
		"name", s.cfg.Server.Name,
		"control", s.control.Addr(),
		"voice", s.voice.LocalAddr(),
		"default_channel", s.cfg.Channels.DefaultChannel)
	return nil
}

// seedAdmin makes sure the configured admin account exists with full
// permissions. The password is hashed and the plaintext never stored.
func (s *Server) seedAdmin() error {
	hash, err := crypto.HashPassword(s.cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("server: hash admin password: %w", err)
	}
	if _, err := s.users.Create(s.cfg.Admin.Username, hash); err != nil && !errors.Is(err, store.ErrUserExists) {
		return fmt.Errorf("server: create admin user: %w", err)
	}
	if err := s.users.SetPermissions(s.cfg.Admin.Username, true, true); err != nil {
		return fmt.Errorf("server: set admin permissions: %w", err)
	}
	slog.Info("admin user ready", "user", s.cfg.Admin.Username)
	return nil
}

// Shutdown closes all listeners and live connections. Safe to call
// more than once.
func (s *Server) Shutdown() {
	s.cancel()
	if s.control != nil {
		_ = s.control.Close()
	}
	if s.voice != nil {
		_ = s.voice.Close()
	}
	if s.wsLn != nil {
		_ = s.wsLn.Close()
	}
	s.handler.closeAll()
}

package server

import (
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/voclink/voclink/pkg/model"
	"github.com/voclink/voclink/pkg/protocol"
)

// StartVoice binds the UDP voice relay on control port + 1 and starts
// the relay loop.
func (s *Server) StartVoice() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.VoiceAddr())
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.voice = conn

	if err := conn.SetReadBuffer(1 << 20); err != nil {
		slog.Warn("set voice read buffer", "err", err)
	}
	slog.Info("voice relay listening", "addr", conn.LocalAddr(), "compat_ip_match", s.cfg.Voice.CompatIPMatch)

	go s.voiceLoop()
	return nil
}

// voiceLoop reads datagrams and fans each one out to the sender's
// channel peers. Voice payloads are opaque; the relay never inspects
// them past the token-mode header, and in token mode it zeroes the
// token field before forwarding.
func (s *Server) voiceLoop() {
	buf := make([]byte, protocol.MaxVoiceFrame)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, raddr, err := s.voice.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			slog.Error("voice read failed", "err", err)
			continue
		}
		s.metrics.VoicePacketsIn.Inc()
		s.metrics.VoiceBytesIn.Add(float64(n))

		frame := buf[:n]
		sender, ok := s.identifySender(frame, raddr)
		if !ok {
			continue
		}
		if s.cfg.Voice.CompatIPMatch {
			s.sessions.SetVoiceEndpoint(sender.ID, raddr)
		} else {
			if !s.sessions.BindVoiceEndpoint(sender.ID, raddr) {
				s.dropFrame("voice endpoint mismatch", raddr)
				continue
			}
			// Receivers get the sender's identity but never its
			// token; the token stays a secret between the sender and
			// the relay.
			binary.BigEndian.PutUint32(frame[4:8], 0)
		}

		if sender.Channel == "" {
			s.dropFrame("sender not in a channel", raddr)
			continue
		}

		for _, memberID := range s.channels.Members(sender.Channel) {
			if memberID == sender.ID {
				continue
			}
			member, ok := s.sessions.Snapshot(memberID)
			if !ok {
				continue
			}
			dst := s.forwardAddr(member, raddr)
			if dst == nil {
				continue
			}
			if _, err := s.voice.WriteToUDP(frame, dst); err != nil {
				slog.Debug("voice forward failed", "target", memberID, "err", err)
				continue
			}
			s.metrics.VoicePacketsOut.Inc()
			s.metrics.VoiceBytesOut.Add(float64(n))
		}
	}
}

// identifySender attributes a datagram to a session. Compat mode goes
// by source IP alone; token mode requires the 8-byte header to carry a
// valid session ID and voice token.
func (s *Server) identifySender(frame []byte, raddr *net.UDPAddr) (model.Session, bool) {
	if s.cfg.Voice.CompatIPMatch {
		sender, ok := s.sessions.LookupByVoiceSource(raddr.IP)
		if !ok {
			s.dropFrame("no session matches source address", raddr)
			return model.Session{}, false
		}
		return sender, true
	}

	hdr, err := protocol.ParseVoiceHeader(frame)
	if err != nil {
		s.dropFrame("frame too short for header", raddr)
		return model.Session{}, false
	}
	sender, ok := s.sessions.ValidateVoiceToken(hdr.SessionID, hdr.Token)
	if !ok {
		s.dropFrame("invalid voice token", raddr)
		return model.Session{}, false
	}
	return sender, true
}

// forwardAddr picks the destination for one channel member. Compat
// mode recomposes the member's stream IP with the sender's UDP source
// port, which is what legacy clients expect but misroutes behind NAT.
// Token mode forwards to the endpoint the member last sent voice from.
func (s *Server) forwardAddr(member model.Session, sender *net.UDPAddr) *net.UDPAddr {
	if s.cfg.Voice.CompatIPMatch {
		if member.RemoteIP == nil {
			return nil
		}
		return &net.UDPAddr{IP: member.RemoteIP, Port: sender.Port}
	}
	return member.UDPAddr
}

func (s *Server) dropFrame(reason string, raddr *net.UDPAddr) {
	s.metrics.VoicePacketsDropped.Inc()
	slog.Debug("voice frame dropped", "reason", reason, "remote", raddr)
}

package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/voclink/voclink/pkg/crypto"
	"github.com/voclink/voclink/pkg/model"
	"github.com/voclink/voclink/pkg/protocol"
	"github.com/voclink/voclink/pkg/store"
)

// writeTimeout bounds every control-plane write so one stalled client
// cannot wedge a broadcast.
const writeTimeout = 5 * time.Second

// messageConn abstracts a control connection so the TCP listener and
// the WebSocket gateway share one handler path.
type messageConn interface {
	ReadMessage() (*protocol.Message, error)
	WriteMessage(msg *protocol.Message) error
	Close() error
	RemoteAddr() net.Addr
	SetWriteDeadline(t time.Time) error
}

// streamConn adapts a net.Conn to messageConn. Broadcasts write from
// other sessions' goroutines, so writes are serialized with a mutex to
// keep frames from interleaving.
type streamConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *streamConn) ReadMessage() (*protocol.Message, error) {
	return protocol.ReadMessage(c.conn)
}

func (c *streamConn) WriteMessage(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteMessage(c.conn, msg)
}

func (c *streamConn) Close() error { return c.conn.Close() }

func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *streamConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// controlHandler maps live sessions to their connections and fans
// broadcasts out to channel members.
type controlHandler struct {
	server *Server
	mu     sync.RWMutex
	conns  map[uint32]messageConn
}

func newControlHandler(srv *Server) *controlHandler {
	return &controlHandler{server: srv, conns: make(map[uint32]messageConn)}
}

func (h *controlHandler) setConn(id uint32, conn messageConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
}

func (h *controlHandler) removeConn(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

func (h *controlHandler) connFor(id uint32) messageConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id]
}

func (h *controlHandler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, id)
	}
}

// broadcastToChannel delivers msg to every member of a channel except
// the excluded session. A failed write is logged and counted but never
// aborts the fan-out.
func (h *controlHandler) broadcastToChannel(channel string, msg *protocol.Message, exclude uint32) {
	for _, id := range h.server.channels.Members(channel) {
		if id == exclude {
			continue
		}
		conn := h.connFor(id)
		if conn == nil {
			continue
		}
		if err := writeWithDeadline(conn, msg); err != nil {
			h.server.metrics.BroadcastErrorsTotal.Inc()
			slog.Warn("broadcast write failed", "channel", channel, "session", id, "err", err)
		}
	}
}

func writeWithDeadline(conn messageConn, msg *protocol.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteMessage(msg)
	_ = conn.SetWriteDeadline(time.Time{})
	return err
}

// StartControl binds the TCP control listener and begins accepting.
func (s *Server) StartControl() error {
	ln, err := net.Listen("tcp", s.cfg.ControlAddr())
	if err != nil {
		return err
	}
	s.control = ln
	slog.Info("control listening", "addr", ln.Addr())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("accept failed", "err", err)
				continue
			}
			if max := s.cfg.Security.MaxConnections; max > 0 && s.sessions.Count() >= max {
				slog.Warn("connection limit reached, rejecting", "remote", conn.RemoteAddr(), "limit", max)
				_ = conn.Close()
				continue
			}
			go s.handleConn(&streamConn{conn: conn})
		}
	}()
	return nil
}

// handleConn runs the read loop for one control connection, TCP or
// WebSocket. It owns the session's lifecycle: registered on entry,
// torn down exactly once on exit.
func (s *Server) handleConn(conn messageConn) {
	defer conn.Close()

	sess, err := s.sessions.Register(conn.RemoteAddr())
	if err != nil {
		slog.Error("register session", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()
	defer s.teardown(sess.ID)

	s.handler.setConn(sess.ID, conn)
	slog.Debug("client connected", "remote", conn.RemoteAddr(), "session", sess.ID)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msg, err := conn.ReadMessage()
		if err != nil {
			// An unparseable body inside an intact frame is discarded;
			// the connection stays up.
			if errors.Is(err, protocol.ErrBadFrame) {
				slog.Warn("discarding malformed frame", "session", sess.ID, "err", err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Debug("read failed", "session", sess.ID, "err", err)
			}
			return
		}
		s.dispatch(sess.ID, conn, msg)
	}
}

// teardown removes a session and, if it was in a channel, tells the
// channel it left. Registry removal is idempotent so a racing shutdown
// produces at most one USER_LEFT.
func (s *Server) teardown(id uint32) {
	s.handler.removeConn(id)
	sess, removed := s.sessions.Remove(id)
	if !removed {
		return
	}
	channel, wasMember := s.channels.Leave(id)
	slog.Info("client disconnected", "session", id, "user", sess.Username)
	if wasMember && sess.Username != "" {
		s.broadcastUserEvent(protocol.TypeUserLeft, channel, sess.Username+" disconnected", id)
	}
}

func (s *Server) broadcastUserEvent(typ, channel, content string, exclude uint32) {
	s.handler.broadcastToChannel(channel, &protocol.Message{
		Type:      typ,
		From:      protocol.ServerSender,
		Channel:   channel,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}, exclude)
}

func (s *Server) dispatch(id uint32, conn messageConn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeLogin:
		s.handleLogin(id, conn, msg)
	case protocol.TypeRegister:
		s.handleRegister(id, conn, msg)
	case protocol.TypeCreateChannel:
		s.handleCreateChannel(id, conn, msg)
	case protocol.TypeJoinChannel:
		s.handleJoinChannel(id, conn, msg)
	case protocol.TypeLeaveChannel:
		s.handleLeaveChannel(id, conn)
	case protocol.TypeChatMessage:
		s.handleChatMessage(id, conn, msg)
	case protocol.TypeGetChannels:
		s.handleGetChannels(id, conn)
	case protocol.TypeGetUsers:
		s.handleGetUsers(id, conn, msg)
	case protocol.TypeGrantPermission:
		s.handleGrantPermission(id, conn, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "session", id)
	}
}

// requireAuth returns the session snapshot if it is authenticated.
func (s *Server) requireAuth(id uint32) (model.Session, error) {
	sess, ok := s.sessions.Snapshot(id)
	if !ok || !sess.Authenticated {
		return model.Session{}, ErrNotAuthenticated
	}
	return sess, nil
}

func (s *Server) sendReply(id uint32, conn messageConn, msg *protocol.Message) {
	if err := writeWithDeadline(conn, msg); err != nil {
		slog.Warn("reply write failed", "session", id, "type", msg.Type, "err", err)
	}
}

func (s *Server) sendError(id uint32, conn messageConn, err error) {
	reply := protocol.New(protocol.TypeError)
	reply.Content = errorContent(err)
	s.sendReply(id, conn, reply)
}

func (s *Server) handleLogin(id uint32, conn messageConn, msg *protocol.Message) {
	var data protocol.LoginData
	if err := msg.DecodeData(&data); err != nil {
		slog.Warn("malformed LOGIN payload", "session", id, "err", err)
		return
	}

	fail := func() {
		s.metrics.AuthFailedTotal.Inc()
		slog.Info("login failed", "user", data.Username, "remote", conn.RemoteAddr())
		reply := protocol.New(protocol.TypeLoginFailed)
		reply.Content = "Invalid username or password"
		s.sendReply(id, conn, reply)
	}

	user, err := s.users.Get(data.Username)
	if err != nil {
		slog.Error("user lookup", "user", data.Username, "err", err)
		fail()
		return
	}
	if user == nil || !crypto.VerifyPassword(data.Password, user.PasswordHash) {
		fail()
		return
	}

	var token uint32
	if !s.cfg.Voice.CompatIPMatch {
		token, err = crypto.NewVoiceToken()
		if err != nil {
			slog.Error("voice token", "err", err)
			fail()
			return
		}
	}

	// A re-login lands the session in the default channel; whatever
	// channel it occupied before must hear the departure.
	prior, _ := s.sessions.Snapshot(id)

	defaultChannel := s.channels.DefaultName()
	s.sessions.Authenticate(id, user.Username, token)
	if _, err := s.channels.Join(defaultChannel, id, ""); err != nil {
		slog.Error("join default channel", "user", user.Username, "err", err)
		s.sendError(id, conn, err)
		return
	}
	s.sessions.SetChannel(id, defaultChannel)
	if prior.Channel != "" {
		s.broadcastUserEvent(protocol.TypeUserLeft, prior.Channel, prior.Username+" left the channel", id)
	}
	if err := s.users.TouchLogin(user.Username, time.Now().UTC()); err != nil {
		slog.Warn("record login time", "user", user.Username, "err", err)
	}

	s.metrics.AuthSuccessTotal.Inc()
	reply, err := protocol.NewWithData(protocol.TypeLoginSuccess, protocol.LoginSuccessData{
		SessionID:         id,
		Username:          user.Username,
		IsAdmin:           user.IsAdmin,
		CanCreateChannels: user.CanCreateChannels,
		CurrentChannel:    defaultChannel,
		VoiceToken:        token,
	})
	if err != nil {
		slog.Error("encode LOGIN_SUCCESS", "err", err)
		return
	}
	s.sendReply(id, conn, reply)
	slog.Info("login", "user", user.Username, "session", id, "remote", conn.RemoteAddr())
	s.broadcastUserEvent(protocol.TypeUserJoined, defaultChannel, user.Username+" joined the channel", id)
}

func (s *Server) handleRegister(id uint32, conn messageConn, msg *protocol.Message) {
	var data protocol.RegisterData
	if err := msg.DecodeData(&data); err != nil {
		slog.Warn("malformed REGISTER payload", "session", id, "err", err)
		return
	}

	fail := func(content string) {
		reply := protocol.New(protocol.TypeRegisterFailed)
		reply.Content = content
		s.sendReply(id, conn, reply)
	}

	hash, err := crypto.HashPassword(data.Password)
	if err != nil {
		slog.Error("hash password", "err", err)
		fail("Registration failed")
		return
	}
	if _, err := s.users.Create(data.Username, hash); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			fail("Username already exists")
		} else {
			slog.Info("registration rejected", "user", data.Username, "err", err)
			fail("Invalid username")
		}
		return
	}

	reply := protocol.New(protocol.TypeRegisterSuccess)
	reply.Content = "User registered successfully"
	s.sendReply(id, conn, reply)
	slog.Info("user registered", "user", data.Username, "remote", conn.RemoteAddr())
}

func (s *Server) handleCreateChannel(id uint32, conn messageConn, msg *protocol.Message) {
	sess, err := s.requireAuth(id)
	if err != nil {
		s.sendError(id, conn, err)
		return
	}
	// Permissions are read fresh from the store so a grant applies
	// without re-login.
	user, err := s.users.Get(sess.Username)
	if err != nil || user == nil {
		s.sendError(id, conn, ErrNotAuthenticated)
		return
	}
	if !user.CanCreateChannels {
		s.sendError(id, conn, ErrNoCreatePermission)
		return
	}

	var data protocol.CreateChannelData
	if err := msg.DecodeData(&data); err != nil {
		slog.Warn("malformed CREATE_CHANNEL payload", "session", id, "err", err)
		return
	}

	ch, err := s.channels.Create(data.ChannelName, sess.Username, data.IsPrivate, data.Password)
	if err != nil {
		s.sendError(id, conn, err)
		return
	}
	if err := s.users.AddOwnedChannel(sess.Username, ch.Name); err != nil {
		slog.Warn("record channel ownership", "user", sess.Username, "channel", ch.Name, "err", err)
	}
	s.metrics.ChannelsCreatedTotal.Inc()

	reply, err := protocol.NewWithData(protocol.TypeChannelCreated, protocol.ChannelCreatedData{
		ChannelName: ch.Name,
		Owner:       ch.Owner,
		IsPrivate:   ch.IsPrivate,
	})
	if err != nil {
		slog.Error("encode CHANNEL_CREATED", "err", err)
		return
	}
	s.sendReply(id, conn, reply)
	slog.Info("channel created", "channel", ch.Name, "owner", ch.Owner, "private", ch.IsPrivate)
}

func (s *Server) handleJoinChannel(id uint32, conn messageConn, msg *protocol.Message) {
	sess, err := s.requireAuth(id)
	if err != nil {
		s.sendError(id, conn, err)
		return
	}
	var data protocol.JoinChannelData
	if err := msg.DecodeData(&data); err != nil {
		slog.Warn("malformed JOIN_CHANNEL payload", "session", id, "err", err)
		return
	}

	old := sess.Channel
	memberIDs, err := s.channels.Join(data.ChannelName, id, data.Password)
	if err != nil {
		s.sendError(id, conn, err)
		return
	}
	s.sessions.SetChannel(id, data.ChannelName)

	if old != "" {
		s.broadcastUserEvent(protocol.TypeUserLeft, old, sess.Username+" left the channel", id)
	}

	reply, err := protocol.NewWithData(protocol.TypeChannelJoined, protocol.ChannelJoinedData{
		ChannelName: data.ChannelName,
		Members:     s.usernamesFor(memberIDs),
	})
	if err != nil {
		slog.Error("encode CHANNEL_JOINED", "err", err)
		return
	}
	s.sendReply(id, conn, reply)
	s.broadcastUserEvent(protocol.TypeUserJoined, data.ChannelName, sess.Username+" joined the channel", id)
	slog.Info("channel joined", "channel", data.ChannelName, "user", sess.Username)
}

// handleLeaveChannel moves the session back to the default channel.
// Unauthenticated or channel-less sessions are ignored without a reply.
func (s *Server) handleLeaveChannel(id uint32, conn messageConn) {
	sess, err := s.requireAuth(id)
	if err != nil || sess.Channel == "" {
		return
	}

	defaultChannel := s.channels.DefaultName()
	old := sess.Channel
	if _, err := s.channels.Join(defaultChannel, id, ""); err != nil {
		slog.Error("rejoin default channel", "user", sess.Username, "err", err)
		return
	}
	s.sessions.SetChannel(id, defaultChannel)

	s.broadcastUserEvent(protocol.TypeUserLeft, old, sess.Username+" left the channel", id)

	reply, err := protocol.NewWithData(protocol.TypeChannelLeft, protocol.ChannelLeftData{
		ChannelName: defaultChannel,
	})
	if err != nil {
		slog.Error("encode CHANNEL_LEFT", "err", err)
		return
	}
	// The landing in the default channel is silent; only the vacated
	// channel hears anything.
	s.sendReply(id, conn, reply)
	slog.Debug("channel left", "user", sess.Username, "from", old)
}

func (s *Server) handleChatMessage(id uint32, conn messageConn, msg *protocol.Message) {
	sess, err := s.requireAuth(id)
	if err != nil {
		s.sendError(id, conn, err)
		return
	}
	if sess.Channel == "" {
		return
	}

	s.handler.broadcastToChannel(sess.Channel, &protocol.Message{
		Type:      protocol.TypeChatMessage,
		From:      sess.Username,
		Channel:   sess.Channel,
		Content:   msg.Content,
		Timestamp: time.Now().UTC(),
	}, id)
	s.metrics.ChatMessagesTotal.Inc()
	slog.Debug("chat relayed", "channel", sess.Channel, "from", sess.Username)
}

func (s *Server) handleGetChannels(id uint32, conn messageConn) {
	if _, err := s.requireAuth(id); err != nil {
		s.sendError(id, conn, err)
		return
	}
	reply, err := protocol.NewWithData(protocol.TypeChannelsList, protocol.ChannelsListData{
		Channels: s.channels.List(),
	})
	if err != nil {
		slog.Error("encode CHANNELS_LIST", "err", err)
		return
	}
	s.sendReply(id, conn, reply)
}

func (s *Server) handleGetUsers(id uint32, conn messageConn, msg *protocol.Message) {
	if _, err := s.requireAuth(id); err != nil {
		s.sendError(id, conn, err)
		return
	}
	var data protocol.GetUsersData
	if err := msg.DecodeData(&data); err != nil {
		slog.Warn("malformed GET_USERS payload", "session", id, "err", err)
		return
	}
	if !s.channels.Exists(data.ChannelName) {
		s.sendError(id, conn, ErrChannelNotFound)
		return
	}

	reply, err := protocol.NewWithData(protocol.TypeUsersList, protocol.UsersListData{
		ChannelName: data.ChannelName,
		Users:       s.usernamesFor(s.channels.Members(data.ChannelName)),
	})
	if err != nil {
		slog.Error("encode USERS_LIST", "err", err)
		return
	}
	s.sendReply(id, conn, reply)
}

func (s *Server) handleGrantPermission(id uint32, conn messageConn, msg *protocol.Message) {
	sess, err := s.requireAuth(id)
	if err != nil {
		s.sendError(id, conn, err)
		return
	}
	granter, err := s.users.Get(sess.Username)
	if err != nil || granter == nil || !granter.IsAdmin {
		s.sendError(id, conn, ErrNotAdmin)
		return
	}

	var data protocol.GrantPermissionData
	if err := msg.DecodeData(&data); err != nil {
		slog.Warn("malformed GRANT_PERMISSION payload", "session", id, "err", err)
		return
	}

	target, err := s.users.Get(data.Username)
	if err != nil || target == nil {
		s.sendError(id, conn, ErrUserNotFound)
		return
	}

	// An unrecognized permission name changes nothing but is still
	// acknowledged; clients treat PERMISSION_GRANTED as the terminal
	// reply either way.
	switch data.Permission {
	case protocol.PermissionCreateChannels:
		err = s.users.SetPermissions(target.Username, target.IsAdmin, true)
	case protocol.PermissionAdmin:
		err = s.users.SetPermissions(target.Username, true, true)
	}
	if err != nil {
		slog.Error("apply permission", "user", data.Username, "err", err)
		s.sendError(id, conn, err)
		return
	}

	reply, err := protocol.NewWithData(protocol.TypePermissionGranted, protocol.PermissionGrantedData{
		Username:   data.Username,
		Permission: data.Permission,
	})
	if err != nil {
		slog.Error("encode PERMISSION_GRANTED", "err", err)
		return
	}
	s.sendReply(id, conn, reply)
	slog.Info("permission granted", "by", sess.Username, "to", data.Username, "permission", data.Permission)
}

// usernamesFor maps live session IDs to usernames, sorted for stable
// replies. Sessions that vanished mid-call are skipped.
func (s *Server) usernamesFor(ids []uint32) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.sessions.Snapshot(id); ok && sess.Username != "" {
			names = append(names, sess.Username)
		}
	}
	sort.Strings(names)
	return names
}

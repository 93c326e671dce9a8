package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type tags. Requests flow client -> server, replies and
// broadcasts flow server -> client. Tag strings are part of the wire
// contract and shared with the desktop and mobile clients.
const (
	TypeLogin           = "LOGIN"
	TypeRegister        = "REGISTER"
	TypeCreateChannel   = "CREATE_CHANNEL"
	TypeJoinChannel     = "JOIN_CHANNEL"
	TypeLeaveChannel    = "LEAVE_CHANNEL"
	TypeChatMessage     = "CHAT_MESSAGE"
	TypeGetChannels     = "GET_CHANNELS"
	TypeGetUsers        = "GET_USERS"
	TypeGrantPermission = "GRANT_PERMISSION"

	TypeLoginSuccess      = "LOGIN_SUCCESS"
	TypeLoginFailed       = "LOGIN_FAILED"
	TypeRegisterSuccess   = "REGISTER_SUCCESS"
	TypeRegisterFailed    = "REGISTER_FAILED"
	TypeChannelCreated    = "CHANNEL_CREATED"
	TypeChannelJoined     = "CHANNEL_JOINED"
	TypeChannelLeft       = "CHANNEL_LEFT"
	TypeChannelsList      = "CHANNELS_LIST"
	TypeUsersList         = "USERS_LIST"
	TypePermissionGranted = "PERMISSION_GRANTED"
	TypeUserJoined        = "USER_JOINED"
	TypeUserLeft          = "USER_LEFT"
	TypeError             = "ERROR"
)

// Permission names accepted by GRANT_PERMISSION.
const (
	PermissionCreateChannels = "CREATE_CHANNELS"
	PermissionAdmin          = "ADMIN"
)

// ServerSender is the From value on server-originated broadcasts.
const ServerSender = "SERVER"

// Message is the wire envelope. Data carries the per-Type payload and
// is decoded into the matching typed struct after dispatching on Type.
type Message struct {
	Type      string          `json:"Type"`
	From      string          `json:"From,omitempty"`
	To        string          `json:"To,omitempty"`
	Content   string          `json:"Content,omitempty"`
	Channel   string          `json:"Channel,omitempty"`
	Timestamp time.Time       `json:"Timestamp"`
	Data      json.RawMessage `json:"Data,omitempty"`
}

// New creates a message of the given type with no payload.
func New(typ string) *Message {
	return &Message{Type: typ}
}

// NewWithData creates a message of the given type carrying data as its
// JSON payload.
func NewWithData(typ string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s payload: %w", typ, err)
	}
	return &Message{Type: typ, Data: raw}, nil
}

// DecodeData parses the message payload into v. A payload that does not
// match the expected shape for the message type is a protocol error.
func (m *Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("protocol: %s: missing payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("protocol: %s: bad payload: %w", m.Type, err)
	}
	return nil
}

// ----- Request payloads -----

type LoginData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateChannelData struct {
	ChannelName string `json:"channelName"`
	IsPrivate   bool   `json:"isPrivate"`
	Password    string `json:"password,omitempty"`
}

type JoinChannelData struct {
	ChannelName string `json:"channelName"`
	Password    string `json:"password,omitempty"`
}

type GetUsersData struct {
	ChannelName string `json:"channelName"`
}

type GrantPermissionData struct {
	Username   string `json:"username"`
	Permission string `json:"permission"`
}

// ----- Reply payloads -----

type LoginSuccessData struct {
	SessionID         uint32 `json:"sessionId"`
	Username          string `json:"username"`
	IsAdmin           bool   `json:"isAdmin"`
	CanCreateChannels bool   `json:"canCreateChannels"`
	CurrentChannel    string `json:"currentChannel"`
	VoiceToken        uint32 `json:"voiceToken,omitempty"` // only set in token mode
}

type ChannelCreatedData struct {
	ChannelName string `json:"channelName"`
	Owner       string `json:"owner"`
	IsPrivate   bool   `json:"isPrivate"`
}

type ChannelJoinedData struct {
	ChannelName string   `json:"channelName"`
	Members     []string `json:"members"`
}

type ChannelLeftData struct {
	ChannelName string `json:"channelName"`
}

// ChannelSummary is one row of a CHANNELS_LIST reply.
type ChannelSummary struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	MemberCount int    `json:"memberCount"`
	IsPrivate   bool   `json:"isPrivate"`
	HasPassword bool   `json:"hasPassword"`
}

type ChannelsListData struct {
	Channels []ChannelSummary `json:"channels"`
}

type UsersListData struct {
	ChannelName string   `json:"channelName"`
	Users       []string `json:"users"`
}

type PermissionGrantedData struct {
	Username   string `json:"username"`
	Permission string `json:"permission"`
}

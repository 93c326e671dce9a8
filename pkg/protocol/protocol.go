// Package protocol defines the control message wire format and the
// voice frame header used in token mode.
//
// Control messages are single JSON objects framed with a 4-byte
// big-endian length prefix. The upstream protocol relied on TCP
// segmentation alone to separate messages; the explicit prefix is a
// deliberate correction so messages survive splitting and coalescing.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxMessageSize is the maximum framed control message size (64KB).
	MaxMessageSize = 65536

	// VoiceHeaderSize is the byte size of the token-mode voice frame
	// header: [sessionID(4) | voiceToken(4)].
	VoiceHeaderSize = 8

	// MaxVoiceFrame is the largest voice datagram the relay will read.
	MaxVoiceFrame = 2048
)

var ErrMessageTooLarge = errors.New("protocol: message too large")
var ErrVoiceFrameShort = errors.New("protocol: voice frame too short")

// ErrBadFrame marks a frame whose body is not valid JSON. The framing
// itself is intact, so callers may discard the frame and keep reading.
var ErrBadFrame = errors.New("protocol: malformed frame")

// WriteMessage writes a length-prefixed JSON control message.
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("protocol: write: %w (%d bytes)", ErrMessageTooLarge, len(data))
	}

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := w.Write(lenBuf); err != nil {
		return fmt.Errorf("protocol: write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed JSON control message.
func ReadMessage(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxMessageSize {
		return nil, fmt.Errorf("protocol: read: %w (%d bytes)", ErrMessageTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}

	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return msg, nil
}

// VoiceHeader identifies the sender of a token-mode voice frame.
type VoiceHeader struct {
	SessionID uint32
	Token     uint32
}

// MarshalVoiceHeader prepends a voice header to payload.
func MarshalVoiceHeader(h VoiceHeader, payload []byte) []byte {
	buf := make([]byte, VoiceHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], h.SessionID)
	binary.BigEndian.PutUint32(buf[4:8], h.Token)
	copy(buf[VoiceHeaderSize:], payload)
	return buf
}

// ParseVoiceHeader reads the header from a token-mode voice frame.
// The remainder of the frame is the opaque voice payload.
func ParseVoiceHeader(frame []byte) (VoiceHeader, error) {
	if len(frame) < VoiceHeaderSize {
		return VoiceHeader{}, ErrVoiceFrameShort
	}
	return VoiceHeader{
		SessionID: binary.BigEndian.Uint32(frame[0:4]),
		Token:     binary.BigEndian.Uint32(frame[4:8]),
	}, nil
}

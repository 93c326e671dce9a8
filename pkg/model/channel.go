package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxChannelNameLength = 64

var ErrChannelNameEmpty = errors.New("channel name must not be empty")
var ErrChannelNameTooLong = errors.New("channel name too long")

// Channel represents a named group. Membership is tracked separately by
// the channel directory, keyed by session ID, so a Channel value can be
// copied freely.
type Channel struct {
	Name      string
	Owner     string
	IsPrivate bool
	Password  string // empty = joinable by anyone, even when IsPrivate
	Created   time.Time
}

// HasPassword reports whether joining requires a password. A private
// channel with an empty password is open; that quirk is part of the
// wire contract and is relied on by clients.
func (c *Channel) HasPassword() bool {
	return c.Password != ""
}

// ValidateChannelName checks that a channel name is non-blank and at
// most MaxChannelNameLength runes.
func ValidateChannelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrChannelNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}
	return nil
}

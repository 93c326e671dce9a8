package model

import "time"

// User represents a registered user. The password is stored only as a
// salted hash (see pkg/crypto); the plaintext never leaves the login or
// register handler.
type User struct {
	Username          string
	PasswordHash      string
	IsAdmin           bool
	CanCreateChannels bool
	OwnedChannels     []string
	LastLogin         time.Time
}

// Clone returns a deep copy safe to hand out across goroutines.
func (u *User) Clone() *User {
	c := *u
	c.OwnedChannels = append([]string(nil), u.OwnedChannels...)
	return &c
}

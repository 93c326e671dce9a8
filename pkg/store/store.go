// Package store provides user record storage behind a narrow interface.
//
// The server holds no state across restarts, so the shipped
// implementation is in-memory; the interface exists so a persistent
// backend can be slotted in without touching the server packages.
package store

import (
	"errors"
	"time"

	"github.com/voclink/voclink/pkg/model"
)

var ErrUserExists = errors.New("store: username already exists")

// UserStore defines persistence for registered users. Implementations
// must be safe for concurrent use; returned users are copies.
type UserStore interface {
	// Create registers a new user with a pre-hashed password. Returns
	// ErrUserExists if the username is taken.
	Create(username, passwordHash string) (*model.User, error)

	// Get retrieves a user by username. Returns (nil, nil) if not found.
	Get(username string) (*model.User, error)

	// SetPermissions updates a user's admin and channel-creation flags.
	// Unknown usernames are a no-op.
	SetPermissions(username string, isAdmin, canCreateChannels bool) error

	// AddOwnedChannel appends a channel name to a user's owned list.
	AddOwnedChannel(username, channel string) error

	// TouchLogin records a successful login time.
	TouchLogin(username string, at time.Time) error

	// List returns all users ordered by username.
	List() ([]model.User, error)

	// Close releases any underlying resources.
	Close() error
}

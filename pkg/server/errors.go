package server

import (
	"errors"

	"github.com/voclink/voclink/pkg/model"
)

// Domain errors surfaced to clients as ERROR replies. The Content
// strings they map to are part of the wire contract and matched
// verbatim by clients.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrChannelNotFound    = errors.New("channel does not exist")
	ErrChannelExists      = errors.New("channel already exists")
	ErrWrongPassword      = errors.New("incorrect channel password")
	ErrUserNotFound       = errors.New("user does not exist")
	ErrNoCreatePermission = errors.New("no permission to create channels")
	ErrNotAdmin           = errors.New("admin privileges required")
	ErrChannelLimit       = errors.New("channel limit reached")
)

func errorContent(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Not authenticated"
	case errors.Is(err, ErrChannelNotFound):
		return "Channel does not exist"
	case errors.Is(err, ErrChannelExists):
		return "Channel already exists"
	case errors.Is(err, ErrWrongPassword):
		return "Incorrect channel password"
	case errors.Is(err, ErrUserNotFound):
		return "User does not exist"
	case errors.Is(err, ErrNoCreatePermission):
		return "No permission to create channels"
	case errors.Is(err, ErrNotAdmin):
		return "Admin privileges required"
	case errors.Is(err, ErrChannelLimit):
		return "Channel limit reached"
	case errors.Is(err, model.ErrChannelNameEmpty), errors.Is(err, model.ErrChannelNameTooLong):
		return "Invalid channel name"
	default:
		return "Internal server error"
	}
}

package model

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateChannelName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "General", nil},
		{"valid with spaces", "Dev Talk", nil},
		{"valid max length", strings.Repeat("x", MaxChannelNameLength), nil},
		{"empty", "", ErrChannelNameEmpty},
		{"blank", "   ", ErrChannelNameEmpty},
		{"too long", strings.Repeat("x", MaxChannelNameLength+1), ErrChannelNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannelName(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateChannelName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestChannelHasPassword(t *testing.T) {
	open := Channel{Name: "a", IsPrivate: true, Password: ""}
	if open.HasPassword() {
		t.Error("private channel with empty password must report HasPassword() == false")
	}
	locked := Channel{Name: "b", Password: "secret"}
	if !locked.HasPassword() {
		t.Error("channel with password must report HasPassword() == true")
	}
}

func TestUserClone(t *testing.T) {
	u := &User{Username: "alice", OwnedChannels: []string{"dev"}}
	c := u.Clone()
	c.OwnedChannels[0] = "other"
	c.OwnedChannels = append(c.OwnedChannels, "more")
	if u.OwnedChannels[0] != "dev" || len(u.OwnedChannels) != 1 {
		t.Errorf("Clone shares OwnedChannels backing array: %v", u.OwnedChannels)
	}
}

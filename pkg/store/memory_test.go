package store

import (
	"errors"
	"testing"
	"time"

	"github.com/voclink/voclink/pkg/model"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryWithClock(fixedClock())

	created, err := s.Create("alice", "argon2id$aa$bb")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Username != "alice" || created.IsAdmin || created.CanCreateChannels {
		t.Errorf("unexpected new user: %+v", created)
	}

	got, err := s.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.PasswordHash != "argon2id$aa$bb" {
		t.Errorf("Get returned %+v", got)
	}

	missing, err := s.Get("nobody")
	if err != nil || missing != nil {
		t.Errorf("Get(nobody) = %v, %v, want nil, nil", missing, err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := NewMemory()
	if _, err := s.Create("alice", "h"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("alice", "h2"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate Create error = %v, want ErrUserExists", err)
	}
}

func TestCreateInvalidUsername(t *testing.T) {
	s := NewMemory()
	if _, err := s.Create("bad name", "h"); !errors.Is(err, model.ErrUsernameInvalidChars) {
		t.Errorf("Create error = %v, want ErrUsernameInvalidChars", err)
	}
}

func TestSetPermissions(t *testing.T) {
	s := NewMemory()
	if _, err := s.Create("alice", "h"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetPermissions("alice", true, true); err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	got, _ := s.Get("alice")
	if !got.IsAdmin || !got.CanCreateChannels {
		t.Errorf("permissions not applied: %+v", got)
	}
	// Unknown user is a no-op, not an error.
	if err := s.SetPermissions("nobody", true, true); err != nil {
		t.Errorf("SetPermissions(nobody) = %v", err)
	}
}

func TestAddOwnedChannelAndCopyOut(t *testing.T) {
	s := NewMemory()
	if _, err := s.Create("alice", "h"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AddOwnedChannel("alice", "dev"); err != nil {
		t.Fatalf("AddOwnedChannel: %v", err)
	}

	got, _ := s.Get("alice")
	got.OwnedChannels[0] = "mutated"

	again, _ := s.Get("alice")
	if again.OwnedChannels[0] != "dev" {
		t.Error("Get returned a reference into the store's backing data")
	}
}

func TestTouchLogin(t *testing.T) {
	s := NewMemoryWithClock(fixedClock())
	if _, err := s.Create("alice", "h"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	at := time.Date(2025, 7, 2, 8, 30, 0, 0, time.UTC)
	if err := s.TouchLogin("alice", at); err != nil {
		t.Fatalf("TouchLogin: %v", err)
	}
	got, _ := s.Get("alice")
	if !got.LastLogin.Equal(at) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, at)
	}
}

func TestListOrdered(t *testing.T) {
	s := NewMemory()
	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := s.Create(name, "h"); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}
	users, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	for i, u := range users {
		if u.Username != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, u.Username, want[i])
		}
	}
}

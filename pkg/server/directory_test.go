package server

import (
	"errors"
	"testing"
)

func TestCreateChannel(t *testing.T) {
	d := NewChannelDirectory("Lobby", 0)
	d.EnsureDefault("admin")

	ch, err := d.Create("dev", "alice", false, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.Owner != "alice" || ch.IsPrivate {
		t.Errorf("unexpected channel: %+v", ch)
	}

	if _, err := d.Create("dev", "bob", false, ""); !errors.Is(err, ErrChannelExists) {
		t.Errorf("duplicate Create error = %v, want ErrChannelExists", err)
	}
	if _, err := d.Create("", "alice", false, ""); err == nil {
		t.Error("Create accepted empty channel name")
	}
}

func TestChannelLimitExcludesDefault(t *testing.T) {
	d := NewChannelDirectory("Lobby", 2)
	d.EnsureDefault("admin")

	for _, name := range []string{"one", "two"} {
		if _, err := d.Create(name, "alice", false, ""); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}
	if _, err := d.Create("three", "alice", false, ""); !errors.Is(err, ErrChannelLimit) {
		t.Errorf("Create over limit error = %v, want ErrChannelLimit", err)
	}
}

func TestJoinMovesBetweenChannels(t *testing.T) {
	d := NewChannelDirectory("Lobby", 0)
	d.EnsureDefault("admin")
	if _, err := d.Create("dev", "alice", false, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const sid = uint32(7)
	members, err := d.Join("Lobby", sid, "")
	if err != nil {
		t.Fatalf("Join(Lobby): %v", err)
	}
	if len(members) != 1 || members[0] != sid {
		t.Errorf("Lobby members = %v", members)
	}

	if _, err := d.Join("dev", sid, ""); err != nil {
		t.Fatalf("Join(dev): %v", err)
	}
	if got := d.Members("Lobby"); len(got) != 0 {
		t.Errorf("session still in Lobby after moving: %v", got)
	}
	if got := d.Members("dev"); len(got) != 1 {
		t.Errorf("dev members = %v", got)
	}
}

func TestJoinPasswords(t *testing.T) {
	d := NewChannelDirectory("Lobby", 0)
	if _, err := d.Create("vault", "alice", true, "s3cret"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Private but no password: open to everyone.
	if _, err := d.Create("openclub", "alice", true, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := d.Join("vault", 1, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Join wrong password error = %v, want ErrWrongPassword", err)
	}
	if _, err := d.Join("vault", 1, "s3cret"); err != nil {
		t.Errorf("Join with correct password: %v", err)
	}
	if _, err := d.Join("openclub", 2, ""); err != nil {
		t.Errorf("Join open private channel: %v", err)
	}
	if _, err := d.Join("nowhere", 3, ""); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("Join unknown channel error = %v, want ErrChannelNotFound", err)
	}
}

func TestLeave(t *testing.T) {
	d := NewChannelDirectory("Lobby", 0)
	d.EnsureDefault("admin")
	if _, err := d.Join("Lobby", 1, ""); err != nil {
		t.Fatalf("Join: %v", err)
	}

	name, ok := d.Leave(1)
	if !ok || name != "Lobby" {
		t.Errorf("Leave = %q, %v", name, ok)
	}
	if _, ok := d.Leave(1); ok {
		t.Error("second Leave reported membership")
	}
}

func TestListSortedWithCounts(t *testing.T) {
	d := NewChannelDirectory("Lobby", 0)
	d.EnsureDefault("admin")
	if _, err := d.Create("beta", "alice", false, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Create("alpha", "bob", true, "pw"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Join("beta", 1, ""); err != nil {
		t.Fatalf("Join: %v", err)
	}

	list := d.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d channels, want 3", len(list))
	}
	wantNames := []string{"Lobby", "alpha", "beta"}
	for i, s := range list {
		if s.Name != wantNames[i] {
			t.Errorf("List[%d].Name = %q, want %q", i, s.Name, wantNames[i])
		}
	}
	if !list[1].HasPassword || !list[1].IsPrivate {
		t.Errorf("alpha summary = %+v", list[1])
	}
	if list[2].MemberCount != 1 {
		t.Errorf("beta MemberCount = %d, want 1", list[2].MemberCount)
	}
}

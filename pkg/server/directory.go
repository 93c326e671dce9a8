package server

import (
	"sort"
	"sync"
	"time"

	"github.com/voclink/voclink/pkg/model"
	"github.com/voclink/voclink/pkg/protocol"
)

// ChannelDirectory owns the channel records and their memberships. A
// session belongs to at most one channel; Join moves it out of its old
// channel and into the new one under a single lock, so there is no
// window in which it is counted in both.
type ChannelDirectory struct {
	mu          sync.RWMutex
	defaultName string
	maxChannels int
	channels    map[string]*model.Channel
	members     map[string]map[uint32]struct{}
	memberOf    map[uint32]string
}

func NewChannelDirectory(defaultName string, maxChannels int) *ChannelDirectory {
	return &ChannelDirectory{
		defaultName: defaultName,
		maxChannels: maxChannels,
		channels:    make(map[string]*model.Channel),
		members:     make(map[string]map[uint32]struct{}),
		memberOf:    make(map[uint32]string),
	}
}

// DefaultName returns the name of the default channel.
func (d *ChannelDirectory) DefaultName() string {
	return d.defaultName
}

// EnsureDefault creates the default channel if it does not exist yet.
// The default channel does not count against the channel limit.
func (d *ChannelDirectory) EnsureDefault(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.channels[d.defaultName]; ok {
		return
	}
	d.channels[d.defaultName] = &model.Channel{
		Name:    d.defaultName,
		Owner:   owner,
		Created: time.Now().UTC(),
	}
	d.members[d.defaultName] = make(map[uint32]struct{})
}

// Create adds a new channel. The limit, when set, counts user-created
// channels only, so the default channel never eats into it.
func (d *ChannelDirectory) Create(name, owner string, isPrivate bool, password string) (model.Channel, error) {
	if err := model.ValidateChannelName(name); err != nil {
		return model.Channel{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.channels[name]; exists {
		return model.Channel{}, ErrChannelExists
	}
	if d.maxChannels > 0 {
		count := len(d.channels)
		if _, ok := d.channels[d.defaultName]; ok {
			count--
		}
		if count >= d.maxChannels {
			return model.Channel{}, ErrChannelLimit
		}
	}

	ch := &model.Channel{
		Name:      name,
		Owner:     owner,
		IsPrivate: isPrivate,
		Password:  password,
		Created:   time.Now().UTC(),
	}
	d.channels[name] = ch
	d.members[name] = make(map[uint32]struct{})
	return *ch, nil
}

// Get returns a copy of a channel record.
func (d *ChannelDirectory) Get(name string) (model.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[name]
	if !ok {
		return model.Channel{}, false
	}
	return *ch, true
}

// Exists reports whether a channel is known.
func (d *ChannelDirectory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.channels[name]
	return ok
}

// Join moves a session into a channel, leaving whatever channel it was
// in. A non-empty channel password must match; an empty password makes
// the channel open to everyone, private or not. Returns the member IDs
// after the join, including the joiner.
func (d *ChannelDirectory) Join(name string, sessionID uint32, password string) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[name]
	if !ok {
		return nil, ErrChannelNotFound
	}
	if ch.HasPassword() && ch.Password != password {
		return nil, ErrWrongPassword
	}

	if old, ok := d.memberOf[sessionID]; ok {
		delete(d.members[old], sessionID)
	}
	d.members[name][sessionID] = struct{}{}
	d.memberOf[sessionID] = name

	ids := make([]uint32, 0, len(d.members[name]))
	for id := range d.members[name] {
		ids = append(ids, id)
	}
	return ids, nil
}

// Leave removes a session from whatever channel it is in. Returns the
// channel it left, or ok=false if it was not in any.
func (d *ChannelDirectory) Leave(sessionID uint32) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.memberOf[sessionID]
	if !ok {
		return "", false
	}
	delete(d.members[name], sessionID)
	delete(d.memberOf, sessionID)
	return name, true
}

// Members returns the session IDs currently in a channel.
func (d *ChannelDirectory) Members(name string) []uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.members[name]
	if !ok {
		return nil
	}
	ids := make([]uint32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// List returns a summary of every channel, sorted by name. Passwords
// are never included; HasPassword tells clients to prompt.
func (d *ChannelDirectory) List() []protocol.ChannelSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]protocol.ChannelSummary, 0, len(d.channels))
	for name, ch := range d.channels {
		out = append(out, protocol.ChannelSummary{
			Name:        name,
			Owner:       ch.Owner,
			MemberCount: len(d.members[name]),
			IsPrivate:   ch.IsPrivate,
			HasPassword: ch.HasPassword(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

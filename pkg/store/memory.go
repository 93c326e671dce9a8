package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/voclink/voclink/pkg/model"
)

// MemoryStore is the in-memory UserStore implementation.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	users map[string]*model.User
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:   now,
		users: make(map[string]*model.User),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Create registers a new user with a pre-hashed password.
func (s *MemoryStore) Create(username, passwordHash string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, ErrUserExists
	}
	user := &model.User{
		Username:     username,
		PasswordHash: passwordHash,
		LastLogin:    s.now(),
	}
	s.users[username] = user
	return user.Clone(), nil
}

// Get retrieves a user by username. Returns (nil, nil) if not found.
func (s *MemoryStore) Get(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return user.Clone(), nil
}

// SetPermissions updates a user's admin and channel-creation flags.
func (s *MemoryStore) SetPermissions(username string, isAdmin, canCreateChannels bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil
	}
	user.IsAdmin = isAdmin
	user.CanCreateChannels = canCreateChannels
	return nil
}

// AddOwnedChannel appends a channel name to a user's owned list.
func (s *MemoryStore) AddOwnedChannel(username, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil
	}
	user.OwnedChannels = append(user.OwnedChannels, channel)
	return nil
}

// TouchLogin records a successful login time.
func (s *MemoryStore) TouchLogin(username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[username]; ok {
		user.LastLogin = at.UTC()
	}
	return nil
}

// List returns all users ordered by username.
func (s *MemoryStore) List() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// Compile-time check: *MemoryStore implements UserStore.
var _ UserStore = (*MemoryStore)(nil)

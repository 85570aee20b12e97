// Package identity maps human and bot accounts to stable identifiers.
package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// Store is the durable registry of accounts. Name lookups match exactly
// first and fall back to a case-insensitive match.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByName(ctx context.Context, name string) (*models.User, error)
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error

	CreateBot(ctx context.Context, name, description string) (*models.BotAccount, error)
	UpdateBot(ctx context.Context, id int64, name, description string) (*models.BotAccount, error)
	DeleteBot(ctx context.Context, id int64) error
	ListBots(ctx context.Context) ([]*models.BotAccount, error)
	BotByID(ctx context.Context, id int64) (*models.BotAccount, error)
	BotByName(ctx context.Context, name string) (*models.BotAccount, error)
}

// InMemoryStore is a threadsafe in-memory store for tests
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[int64]*models.User
	bots    map[int64]*models.BotAccount
	nextUID int64
	nextBID int64
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[int64]*models.User),
		bots:  make(map[int64]*models.BotAccount),
		now:   time.Now,
	}
}

func (s *InMemoryStore) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return nil, apperr.Conflictf("username %q already taken", username)
		}
	}
	s.nextUID++
	u := &models.User{ID: s.nextUID, Username: username, PasswordHash: passwordHash, IsAdmin: isAdmin, CreatedAt: s.now()}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) UserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d", id)
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) UserByName(ctx context.Context, name string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var folded *models.User
	for _, id := range sortedKeys(s.users) {
		u := s.users[id]
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
		if folded == nil && strings.EqualFold(u.Username, name) {
			folded = u
		}
	}
	if folded == nil {
		return nil, apperr.NotFound("user %q", name)
	}
	cp := *folded
	return &cp, nil
}

func (s *InMemoryStore) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user %d", id)
	}
	u.IsAdmin = isAdmin
	return nil
}

func (s *InMemoryStore) CreateBot(ctx context.Context, name, description string) (*models.BotAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bots {
		if b.Name == name {
			return nil, apperr.Conflictf("bot %q already exists", name)
		}
	}
	s.nextBID++
	b := &models.BotAccount{ID: s.nextBID, Name: name, Description: description, CreatedAt: s.now()}
	s.bots[b.ID] = b
	cp := *b
	return &cp, nil
}

func (s *InMemoryStore) UpdateBot(ctx context.Context, id int64, name, description string) (*models.BotAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, apperr.NotFound("bot %d", id)
	}
	for _, other := range s.bots {
		if other.ID != id && other.Name == name {
			return nil, apperr.Conflictf("bot %q already exists", name)
		}
	}
	b.Name = name
	b.Description = description
	cp := *b
	return &cp, nil
}

func (s *InMemoryStore) DeleteBot(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[id]; !ok {
		return apperr.NotFound("bot %d", id)
	}
	delete(s.bots, id)
	return nil
}

func (s *InMemoryStore) ListBots(ctx context.Context) ([]*models.BotAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.BotAccount, 0, len(s.bots))
	for _, id := range sortedKeys(s.bots) {
		cp := *s.bots[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) BotByID(ctx context.Context, id int64) (*models.BotAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, apperr.NotFound("bot %d", id)
	}
	cp := *b
	return &cp, nil
}

func (s *InMemoryStore) BotByName(ctx context.Context, name string) (*models.BotAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var folded *models.BotAccount
	for _, id := range sortedKeys(s.bots) {
		b := s.bots[id]
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
		if folded == nil && strings.EqualFold(b.Name, name) {
			folded = b
		}
	}
	if folded == nil {
		return nil, apperr.NotFound("bot %q", name)
	}
	cp := *folded
	return &cp, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Package messages is the durable visible channel between two identities.
package messages

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/podjdr/pkg/models"
)

// Store persists visible messages. Thread reads and marks read in one
// atomic step and returns the messages as they were before the update.
type Store interface {
	Insert(ctx context.Context, msg *models.Message) error
	Thread(ctx context.Context, self, peer models.Ref) ([]models.Message, error)
	CountUnread(ctx context.Context, from, to models.Ref) (int, error)
}

// InMemoryStore is a threadsafe in-memory store for tests
type InMemoryStore struct {
	mu     sync.Mutex
	msgs   []*models.Message
	nextID int64
	now    func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

func (s *InMemoryStore) Insert(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = s.now()
	msg.IsRead = false
	cp := *msg
	s.msgs = append(s.msgs, &cp)
	return nil
}

func (s *InMemoryStore) Thread(ctx context.Context, self, peer models.Ref) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range s.msgs {
		if (m.Sender == self && m.Receiver == peer) || (m.Sender == peer && m.Receiver == self) {
			out = append(out, *m)
			if m.Receiver == self {
				m.IsRead = true
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) CountUnread(ctx context.Context, from, to models.Ref) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Sender == from && m.Receiver == to && !m.IsRead {
			n++
		}
	}
	return n, nil
}

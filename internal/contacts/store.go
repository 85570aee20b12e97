// Package contacts implements the request/accept/reject graph that decides
// who may message whom.
package contacts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

// Store persists contact edges. Human pairs are stored as directed rows,
// one per ordered pair; human/bot pairs as a single row per pair that
// records which side initiated it.
type Store interface {
	// InsertRequest stores a new pending edge. When an edge already exists
	// for the same ordered pair the existing edge is returned unchanged and
	// created is false.
	InsertRequest(ctx context.Context, edge models.ContactEdge) (stored *models.ContactEdge, created bool, err error)
	// Accept moves the edge requester->acceptor to accepted. For two humans
	// the reciprocal accepted edge acceptor->requester is written in the
	// same transaction. Accepting an already accepted edge succeeds.
	Accept(ctx context.Context, acceptor, requester models.Ref) error
	// Remove deletes every edge between self and peer regardless of status
	Remove(ctx context.Context, self, peer models.Ref) error

	ListAccepted(ctx context.Context, self models.Ref) ([]models.ContactEntry, error)
	ListIncoming(ctx context.Context, self models.Ref) ([]models.ContactRequest, error)
	ListOutgoing(ctx context.Context, self models.Ref) ([]models.ContactRequest, error)
	IsAccepted(ctx context.Context, a, b models.Ref) (bool, error)
	// EdgesBetween returns the directed edges stored for the pair
	EdgesBetween(ctx context.Context, a, b models.Ref) ([]models.ContactEdge, error)
}

// UnreadCounter reports how many unread messages from has addressed to to
type UnreadCounter interface {
	CountUnread(ctx context.Context, from, to models.Ref) (int, error)
}

type pairKey struct{ a, b int64 }

type humanRow struct {
	status    models.ContactStatus
	createdAt time.Time
}

type botRow struct {
	status    models.ContactStatus
	initiator models.Kind
	createdAt time.Time
}

// InMemoryStore is a threadsafe in-memory store for tests. It keeps the
// same two storage shapes as the Postgres store.
type InMemoryStore struct {
	mu     sync.RWMutex
	humans map[pairKey]*humanRow // (user_id, contact_id)
	bots   map[pairKey]*botRow   // (bot_id, user_id)
	names  identity.Store
	unread UnreadCounter
	now    func() time.Time
}

func NewInMemoryStore(names identity.Store, unread UnreadCounter) *InMemoryStore {
	return &InMemoryStore{
		humans: make(map[pairKey]*humanRow),
		bots:   make(map[pairKey]*botRow),
		names:  names,
		unread: unread,
		now:    time.Now,
	}
}

func (s *InMemoryStore) InsertRequest(ctx context.Context, edge models.ContactEdge) (*models.ContactEdge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch pairShape(edge.Requester, edge.Target) {
	case shapeHumans:
		key := pairKey{edge.Requester.ID, edge.Target.ID}
		if row, ok := s.humans[key]; ok {
			return &models.ContactEdge{Requester: edge.Requester, Target: edge.Target, Status: row.status, CreatedAt: row.createdAt}, false, nil
		}
		row := &humanRow{status: edge.Status, createdAt: s.now()}
		s.humans[key] = row
		edge.CreatedAt = row.createdAt
		return &edge, true, nil
	case shapeBot:
		bot, user := splitBot(edge.Requester, edge.Target)
		key := pairKey{bot.ID, user.ID}
		if row, ok := s.bots[key]; ok {
			return botEdge(bot, user, row), false, nil
		}
		row := &botRow{status: edge.Status, initiator: edge.Requester.Kind, createdAt: s.now()}
		s.bots[key] = row
		return botEdge(bot, user, row), true, nil
	default:
		return nil, false, apperr.Invalid("bots cannot be contacts of other bots")
	}
}

func (s *InMemoryStore) Accept(ctx context.Context, acceptor, requester models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch pairShape(acceptor, requester) {
	case shapeHumans:
		row, ok := s.humans[pairKey{requester.ID, acceptor.ID}]
		if !ok || (row.status != models.StatusPendingTarget && row.status != models.StatusAccepted) {
			return apperr.NotFound("no pending request from %s", requester)
		}
		row.status = models.StatusAccepted
		if back, ok := s.humans[pairKey{acceptor.ID, requester.ID}]; ok {
			back.status = models.StatusAccepted
		} else {
			s.humans[pairKey{acceptor.ID, requester.ID}] = &humanRow{status: models.StatusAccepted, createdAt: s.now()}
		}
		return nil
	case shapeBot:
		bot, user := splitBot(acceptor, requester)
		row, ok := s.bots[pairKey{bot.ID, user.ID}]
		if !ok || (row.status != awaiting(acceptor.Kind) && row.status != models.StatusAccepted) {
			return apperr.NotFound("no pending request from %s", requester)
		}
		row.status = models.StatusAccepted
		return nil
	default:
		return apperr.Invalid("bots cannot be contacts of other bots")
	}
}

func (s *InMemoryStore) Remove(ctx context.Context, self, peer models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch pairShape(self, peer) {
	case shapeHumans:
		delete(s.humans, pairKey{self.ID, peer.ID})
		delete(s.humans, pairKey{peer.ID, self.ID})
	case shapeBot:
		bot, user := splitBot(self, peer)
		delete(s.bots, pairKey{bot.ID, user.ID})
	default:
		return apperr.Invalid("bots cannot be contacts of other bots")
	}
	return nil
}

func (s *InMemoryStore) ListAccepted(ctx context.Context, self models.Ref) ([]models.ContactEntry, error) {
	s.mu.RLock()
	var peers []models.Ref
	if self.Kind == models.KindHuman {
		for k, row := range s.humans {
			if k.a == self.ID && row.status == models.StatusAccepted {
				peers = append(peers, models.Human(k.b))
			}
		}
	}
	for k, row := range s.bots {
		if row.status != models.StatusAccepted {
			continue
		}
		if self.Kind == models.KindHuman && k.b == self.ID {
			peers = append(peers, models.Bot(k.a))
		}
		if self.Kind == models.KindBot && k.a == self.ID {
			peers = append(peers, models.Human(k.b))
		}
	}
	s.mu.RUnlock()

	out := make([]models.ContactEntry, 0, len(peers))
	for _, p := range peers {
		name, err := s.label(ctx, p)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		unread := 0
		if s.unread != nil {
			if unread, err = s.unread.CountUnread(ctx, p, self); err != nil {
				return nil, err
			}
		}
		out = append(out, models.ContactEntry{PeerID: p.ID, PeerKind: p.Kind, DisplayName: name, UnreadCount: unread})
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName) })
	return out, nil
}

func (s *InMemoryStore) ListIncoming(ctx context.Context, self models.Ref) ([]models.ContactRequest, error) {
	return s.listPending(ctx, self, true)
}

func (s *InMemoryStore) ListOutgoing(ctx context.Context, self models.Ref) ([]models.ContactRequest, error) {
	return s.listPending(ctx, self, false)
}

func (s *InMemoryStore) listPending(ctx context.Context, self models.Ref, incoming bool) ([]models.ContactRequest, error) {
	s.mu.RLock()
	var peers []models.Ref
	if self.Kind == models.KindHuman {
		for k, row := range s.humans {
			if row.status != models.StatusPendingTarget {
				continue
			}
			if incoming && k.b == self.ID {
				peers = append(peers, models.Human(k.a))
			}
			if !incoming && k.a == self.ID {
				peers = append(peers, models.Human(k.b))
			}
		}
	}
	for k, row := range s.bots {
		if row.status == models.StatusAccepted {
			continue
		}
		mine := (self.Kind == models.KindHuman && k.b == self.ID) || (self.Kind == models.KindBot && k.a == self.ID)
		if !mine {
			continue
		}
		// The side that must act sees the edge as incoming
		if (row.status == awaiting(self.Kind)) == incoming {
			if self.Kind == models.KindHuman {
				peers = append(peers, models.Bot(k.a))
			} else {
				peers = append(peers, models.Human(k.b))
			}
		}
	}
	s.mu.RUnlock()

	out := make([]models.ContactRequest, 0, len(peers))
	for _, p := range peers {
		name, err := s.label(ctx, p)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, models.ContactRequest{PeerID: p.ID, PeerKind: p.Kind, DisplayName: name})
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName) })
	return out, nil
}

func (s *InMemoryStore) IsAccepted(ctx context.Context, a, b models.Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch pairShape(a, b) {
	case shapeHumans:
		for _, k := range []pairKey{{a.ID, b.ID}, {b.ID, a.ID}} {
			if row, ok := s.humans[k]; ok && row.status == models.StatusAccepted {
				return true, nil
			}
		}
		return false, nil
	case shapeBot:
		bot, user := splitBot(a, b)
		row, ok := s.bots[pairKey{bot.ID, user.ID}]
		return ok && row.status == models.StatusAccepted, nil
	default:
		return false, nil
	}
}

func (s *InMemoryStore) EdgesBetween(ctx context.Context, a, b models.Ref) ([]models.ContactEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ContactEdge
	switch pairShape(a, b) {
	case shapeHumans:
		for _, pair := range [][2]models.Ref{{a, b}, {b, a}} {
			if row, ok := s.humans[pairKey{pair[0].ID, pair[1].ID}]; ok {
				out = append(out, models.ContactEdge{Requester: pair[0], Target: pair[1], Status: row.status, CreatedAt: row.createdAt})
			}
		}
	case shapeBot:
		bot, user := splitBot(a, b)
		if row, ok := s.bots[pairKey{bot.ID, user.ID}]; ok {
			out = append(out, *botEdge(bot, user, row))
		}
	}
	return out, nil
}

func (s *InMemoryStore) label(ctx context.Context, r models.Ref) (string, error) {
	if r.Kind == models.KindBot {
		b, err := s.names.BotByID(ctx, r.ID)
		if err != nil {
			return "", err
		}
		return b.Name, nil
	}
	u, err := s.names.UserByID(ctx, r.ID)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func botEdge(bot, user models.Ref, row *botRow) *models.ContactEdge {
	e := &models.ContactEdge{Requester: user, Target: bot, Status: row.status, CreatedAt: row.createdAt}
	if row.initiator == models.KindBot {
		e.Requester, e.Target = bot, user
	}
	return e
}

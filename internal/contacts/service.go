package contacts

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

type shape int

const (
	shapeInvalid shape = iota
	shapeHumans
	shapeBot
)

func pairShape(a, b models.Ref) shape {
	switch {
	case a.Kind == models.KindHuman && b.Kind == models.KindHuman:
		return shapeHumans
	case a.Kind == models.KindBot && b.Kind == models.KindHuman,
		a.Kind == models.KindHuman && b.Kind == models.KindBot:
		return shapeBot
	default:
		return shapeInvalid
	}
}

// splitBot orders a mixed pair as (bot, human)
func splitBot(a, b models.Ref) (bot, user models.Ref) {
	if a.Kind == models.KindBot {
		return a, b
	}
	return b, a
}

// awaiting returns the status meaning "the side of this kind must approve".
// Every new request awaits its target, whatever the pair shape.
func awaiting(kind models.Kind) models.ContactStatus {
	if kind == models.KindBot {
		return models.StatusPendingRequester
	}
	return models.StatusPendingTarget
}

// Service is the contact graph as seen by the HTTP layer
type Service struct {
	store    Store
	registry *identity.Registry
}

func NewService(store Store, registry *identity.Registry) *Service {
	return &Service{store: store, registry: registry}
}

// Request creates a pending edge from requester to the identity named
// targetName. Humans may target either kind, humans first; bots only target
// humans. A repeated request returns the edge already stored.
func (s *Service) Request(ctx context.Context, requester models.Ref, targetName string) (*models.ContactEdge, error) {
	var (
		target *identity.Resolved
		err    error
	)
	if requester.Kind == models.KindBot {
		target, err = s.registry.ResolveKind(ctx, models.KindHuman, targetName)
	} else {
		target, err = s.registry.ResolveName(ctx, targetName)
	}
	if err != nil {
		return nil, err
	}
	if target.Ref == requester {
		return nil, apperr.Invalid("cannot add yourself as a contact")
	}
	if pairShape(requester, target.Ref) == shapeInvalid {
		return nil, apperr.Invalid("bots cannot be contacts of other bots")
	}

	edge, created, err := s.store.InsertRequest(ctx, models.ContactEdge{
		Requester: requester,
		Target:    target.Ref,
		Status:    awaiting(target.Ref.Kind),
	})
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().
			Str("requester", requester.String()).
			Str("target", target.Ref.String()).
			Str("status", edge.Status.String()).
			Msg("Contact request created")
	}
	return edge, nil
}

// Accept approves the request requester addressed to acceptor
func (s *Service) Accept(ctx context.Context, acceptor, requester models.Ref) error {
	if err := validatePair(acceptor, requester); err != nil {
		return err
	}
	if err := s.store.Accept(ctx, acceptor, requester); err != nil {
		return err
	}
	log.Info().
		Str("acceptor", acceptor.String()).
		Str("requester", requester.String()).
		Msg("Contact request accepted")
	return nil
}

// Remove deletes every edge between self and peer, pending or accepted
func (s *Service) Remove(ctx context.Context, self, peer models.Ref) error {
	if err := validatePair(self, peer); err != nil {
		return err
	}
	return s.store.Remove(ctx, self, peer)
}

func (s *Service) ListAccepted(ctx context.Context, self models.Ref) ([]models.ContactEntry, error) {
	return s.store.ListAccepted(ctx, self)
}

// ListIncoming returns the requests awaiting self's approval
func (s *Service) ListIncoming(ctx context.Context, self models.Ref) ([]models.ContactRequest, error) {
	return s.store.ListIncoming(ctx, self)
}

// ListOutgoing returns the requests self is waiting on
func (s *Service) ListOutgoing(ctx context.Context, self models.Ref) ([]models.ContactRequest, error) {
	return s.store.ListOutgoing(ctx, self)
}

// IsAccepted reports whether a and b may message each other
func (s *Service) IsAccepted(ctx context.Context, a, b models.Ref) (bool, error) {
	if pairShape(a, b) == shapeInvalid || a == b {
		return false, nil
	}
	return s.store.IsAccepted(ctx, a, b)
}

func validatePair(self, peer models.Ref) error {
	if !peer.Kind.Valid() || peer.ID <= 0 {
		return apperr.Invalid("peer identity is required")
	}
	if self == peer {
		return apperr.Invalid("peer must differ from caller")
	}
	if pairShape(self, peer) == shapeInvalid {
		return apperr.Invalid("bots cannot be contacts of other bots")
	}
	return nil
}

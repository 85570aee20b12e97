package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// Resolved is an identity found by display name
type Resolved struct {
	Ref     models.Ref
	Label   string
	IsAdmin bool
}

// Registry answers the identity questions the other components ask
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry { return &Registry{store: store} }

// Store exposes the underlying store for account management
func (r *Registry) Store() Store { return r.store }

// ResolveName looks a display name up among humans first, then bots
func (r *Registry) ResolveName(ctx context.Context, name string) (*Resolved, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("display name is required")
	}
	u, err := r.store.UserByName(ctx, name)
	if err == nil {
		return &Resolved{Ref: u.Ref(), Label: u.Username, IsAdmin: u.IsAdmin}, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	b, err := r.store.BotByName(ctx, name)
	if err == nil {
		return &Resolved{Ref: b.Ref(), Label: b.Name}, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return nil, apperr.NotFound("no account named %q", name)
}

// ResolveKind looks a display name up among one kind only
func (r *Registry) ResolveKind(ctx context.Context, kind models.Kind, name string) (*Resolved, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("display name is required")
	}
	switch kind {
	case models.KindHuman:
		u, err := r.store.UserByName(ctx, name)
		if err != nil {
			return nil, err
		}
		return &Resolved{Ref: u.Ref(), Label: u.Username, IsAdmin: u.IsAdmin}, nil
	case models.KindBot:
		b, err := r.store.BotByName(ctx, name)
		if err != nil {
			return nil, err
		}
		return &Resolved{Ref: b.Ref(), Label: b.Name}, nil
	default:
		return nil, apperr.Invalid("unknown identity kind %q", kind)
	}
}

// Lookup returns the current state of a referenced identity
func (r *Registry) Lookup(ctx context.Context, ref models.Ref) (*Resolved, error) {
	switch ref.Kind {
	case models.KindHuman:
		u, err := r.store.UserByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &Resolved{Ref: ref, Label: u.Username, IsAdmin: u.IsAdmin}, nil
	case models.KindBot:
		b, err := r.store.BotByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &Resolved{Ref: ref, Label: b.Name}, nil
	default:
		return nil, apperr.Invalid("unknown identity kind %q", ref.Kind)
	}
}

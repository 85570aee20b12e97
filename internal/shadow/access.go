package shadow

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

// Sources of an access entry
const (
	SourceConfig  = "config"
	SourceGranted = "granted"
)

// PolicyOptions is the static part of the access policy
type PolicyOptions struct {
	AllowedHumans []string
	AllowedBots   []string
	AdminBypass   bool
}

// AccessEntry is one identity allowed on the covert channel
type AccessEntry struct {
	Kind   models.Kind `json:"kind"`
	ID     int64       `json:"id,omitempty"`
	Name   string      `json:"name"`
	Source string      `json:"source"`
}

// Policy decides who may use the covert channel. Nothing is cached: every
// check reads the identity's current name and admin flag and the current
// dynamic grants.
type Policy struct {
	registry     *identity.Registry
	grants       GrantStore
	staticHumans map[string]string // folded name -> configured name
	staticBots   map[string]string
	adminBypass  bool
}

func NewPolicy(registry *identity.Registry, grants GrantStore, opts PolicyOptions) *Policy {
	return &Policy{
		registry:     registry,
		grants:       grants,
		staticHumans: foldNames(opts.AllowedHumans),
		staticBots:   foldNames(opts.AllowedBots),
		adminBypass:  opts.AdminBypass,
	}
}

func foldNames(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out[strings.ToLower(n)] = n
		}
	}
	return out
}

func (p *Policy) static(kind models.Kind) map[string]string {
	if kind == models.KindBot {
		return p.staticBots
	}
	return p.staticHumans
}

// HasAccess reports whether ref may use the covert channel right now.
// Unknown identities have no access.
func (p *Policy) HasAccess(ctx context.Context, ref models.Ref) (bool, error) {
	cur, err := p.registry.Lookup(ctx, ref)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, ok := p.static(ref.Kind)[strings.ToLower(cur.Label)]; ok {
		return true, nil
	}
	if ref.Kind == models.KindHuman && p.adminBypass && cur.IsAdmin {
		return true, nil
	}
	return p.grants.IsGranted(ctx, ref)
}

// Grant durably allows the named identity. Granting twice is harmless.
func (p *Policy) Grant(ctx context.Context, kind models.Kind, name string) (*identity.Resolved, error) {
	target, err := p.registry.ResolveKind(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if err := p.grants.Grant(ctx, target.Ref); err != nil {
		return nil, err
	}
	log.Info().Str("identity", target.Ref.String()).Str("name", target.Label).Msg("Shadow access granted")
	return target, nil
}

// Revoke removes a dynamic grant. Entries of the static list cannot be
// revoked at runtime.
func (p *Policy) Revoke(ctx context.Context, kind models.Kind, name string) (*identity.Resolved, error) {
	target, err := p.registry.ResolveKind(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if _, ok := p.static(kind)[strings.ToLower(target.Label)]; ok {
		return nil, apperr.Forbidden("%s is allowed by configuration", target.Label)
	}
	removed, err := p.grants.Revoke(ctx, target.Ref)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperr.NotFound("%s has no shadow access grant", target.Label)
	}
	log.Info().Str("identity", target.Ref.String()).Str("name", target.Label).Msg("Shadow access revoked")
	return target, nil
}

// List returns the configured entries followed by the dynamic grants,
// per kind, humans first. Configured names that match no account are
// listed without an id.
func (p *Policy) List(ctx context.Context) ([]AccessEntry, error) {
	granted, err := p.grants.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccessEntry, 0, len(p.staticHumans)+len(p.staticBots)+len(granted))
	for _, kind := range []models.Kind{models.KindHuman, models.KindBot} {
		for _, name := range sortedValues(p.static(kind)) {
			entry := AccessEntry{Kind: kind, Name: name, Source: SourceConfig}
			if r, err := p.registry.ResolveKind(ctx, kind, name); err == nil {
				entry.ID, entry.Name = r.Ref.ID, r.Label
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			out = append(out, entry)
		}
		for _, ref := range granted {
			if ref.Kind != kind {
				continue
			}
			cur, err := p.registry.Lookup(ctx, ref)
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, AccessEntry{Kind: kind, ID: ref.ID, Name: cur.Label, Source: SourceGranted})
		}
	}
	return out, nil
}

func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

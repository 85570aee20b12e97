// Package shadow implements the covert channel: stable 4-digit pseudonyms,
// the access policy gating the channel and the in-memory message exchange.
package shadow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// CodeSpace is the number of distinct codes, "0000" through "9999"
const CodeSpace = 10000

var (
	// ErrCodeTaken means another identity already holds the candidate code
	ErrCodeTaken = fmt.Errorf("%w: shadow code already taken", apperr.ErrConflict)
	// ErrAlreadyAssigned means the identity already holds a code
	ErrAlreadyAssigned = fmt.Errorf("%w: identity already has a shadow code", apperr.ErrConflict)
	// ErrSpaceExhausted means every code is bound to a live identity
	ErrSpaceExhausted = errors.New("shadow code space exhausted")
)

// Assignment binds a code to an identity
type Assignment struct {
	Ref  models.Ref
	Code string
}

// CodeStore is the durable side of the allocator. Insert must enforce
// uniqueness on the identity and on the code independently and report
// ErrAlreadyAssigned or ErrCodeTaken accordingly.
type CodeStore interface {
	LoadAll(ctx context.Context) ([]Assignment, error)
	Lookup(ctx context.Context, ref models.Ref) (string, error)
	Insert(ctx context.Context, ref models.Ref, code string) error
	Delete(ctx context.Context, ref models.Ref) error
}

// ValidCode reports whether code is exactly four ASCII digits
func ValidCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func formatCode(n int) string { return fmt.Sprintf("%04d", n) }

// Allocator hands out codes lazily and keeps both directions of the mapping
// in memory. The caches are soft state: any divergence from storage is
// repaired by Refresh.
type Allocator struct {
	store CodeStore

	mu     sync.RWMutex
	humans map[int64]string
	bots   map[int64]string
	byCode map[string]models.Ref

	random func() (int, error)

	// misses share one load and are throttled so walking the code space
	// cannot turn into a reload per guess
	flight      singleflight.Group
	missRefresh *rate.Limiter
}

// Refreshes triggered by unknown codes
const (
	missRefreshEvery = 2 * time.Second
	missRefreshBurst = 3
)

func NewAllocator(store CodeStore) *Allocator {
	return &Allocator{
		store:  store,
		humans: make(map[int64]string),
		bots:   make(map[int64]string),
		byCode: make(map[string]models.Ref),
		random: cryptoRandom,

		missRefresh: rate.NewLimiter(rate.Every(missRefreshEvery), missRefreshBurst),
	}
}

func cryptoRandom() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(CodeSpace))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// Refresh replaces both caches with the rows currently in storage
func (a *Allocator) Refresh(ctx context.Context) error {
	rows, err := a.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	humans := make(map[int64]string)
	bots := make(map[int64]string)
	byCode := make(map[string]models.Ref, len(rows))
	for _, row := range rows {
		switch row.Ref.Kind {
		case models.KindHuman:
			humans[row.Ref.ID] = row.Code
		case models.KindBot:
			bots[row.Ref.ID] = row.Code
		default:
			continue
		}
		byCode[row.Code] = row.Ref
	}

	a.mu.Lock()
	a.humans, a.bots, a.byCode = humans, bots, byCode
	a.mu.Unlock()

	log.Debug().Int("codes", len(byCode)).Msg("Shadow code cache loaded")
	return nil
}

// CodeFor returns the code of ref, loading or allocating it on first use
func (a *Allocator) CodeFor(ctx context.Context, ref models.Ref) (string, error) {
	if !ref.Kind.Valid() {
		return "", apperr.Invalid("unknown identity kind %q", ref.Kind)
	}
	if code, ok := a.cached(ref); ok {
		return code, nil
	}
	code, err := a.store.Lookup(ctx, ref)
	if err == nil {
		a.remember(ref, code)
		return code, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	return a.allocate(ctx, ref)
}

// allocate draws candidates until one persists. A lost race on the code
// rebuilds the caches from storage before drawing again.
func (a *Allocator) allocate(ctx context.Context, ref models.Ref) (string, error) {
	for attempt := 0; attempt < CodeSpace; attempt++ {
		code, err := a.draw()
		if err != nil {
			return "", err
		}
		err = a.store.Insert(ctx, ref, code)
		switch {
		case err == nil:
			a.remember(ref, code)
			log.Info().Str("identity", ref.String()).Msg("Shadow code allocated")
			return code, nil
		case errors.Is(err, ErrAlreadyAssigned):
			existing, err := a.store.Lookup(ctx, ref)
			if err != nil {
				return "", err
			}
			a.remember(ref, existing)
			return existing, nil
		case errors.Is(err, ErrCodeTaken):
			log.Warn().
				Str("identity", ref.String()).
				Int("attempt", attempt+1).
				Msg("Shadow code conflict, rebuilding cache")
			if err := a.Refresh(ctx); err != nil {
				return "", err
			}
			if existing, ok := a.cached(ref); ok {
				return existing, nil
			}
		default:
			return "", err
		}
	}
	return "", ErrSpaceExhausted
}

// draw picks a free candidate uniformly at random. Up to CodeSpace draws
// are made; if they all land on taken codes while free slots remain, the
// space is scanned from a random offset so allocation never fails early.
func (a *Allocator) draw() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.byCode) >= CodeSpace {
		return "", ErrSpaceExhausted
	}
	var n int
	var err error
	for i := 0; i < CodeSpace; i++ {
		if n, err = a.random(); err != nil {
			return "", fmt.Errorf("draw shadow code: %w", err)
		}
		if _, taken := a.byCode[formatCode(n)]; !taken {
			return formatCode(n), nil
		}
	}
	for i := 0; i < CodeSpace; i++ {
		code := formatCode((n + i) % CodeSpace)
		if _, taken := a.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrSpaceExhausted
}

// Resolve maps a code back to its identity. A miss may trigger a rebuild
// so codes allocated by another instance are found; concurrent misses share
// one rebuild and rebuilds are rate limited.
func (a *Allocator) Resolve(ctx context.Context, code string) (models.Ref, error) {
	if !ValidCode(code) {
		return models.Ref{}, apperr.Invalid("shadow code must be exactly 4 digits")
	}
	if ref, ok := a.lookupCode(code); ok {
		return ref, nil
	}
	if err := a.refreshOnMiss(ctx); err != nil {
		return models.Ref{}, err
	}
	if ref, ok := a.lookupCode(code); ok {
		return ref, nil
	}
	return models.Ref{}, apperr.NotFound("no identity holds code %s", code)
}

func (a *Allocator) refreshOnMiss(ctx context.Context) error {
	_, err, _ := a.flight.Do("refresh", func() (interface{}, error) {
		if !a.missRefresh.Allow() {
			log.Debug().Msg("Shadow code refresh skipped, rate limited")
			return nil, nil
		}
		return nil, a.Refresh(ctx)
	})
	return err
}

// Forget releases the code of a deleted identity
func (a *Allocator) Forget(ctx context.Context, ref models.Ref) error {
	if err := a.store.Delete(ctx, ref); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.forward(ref.Kind)
	if code, ok := m[ref.ID]; ok {
		delete(a.byCode, code)
		delete(m, ref.ID)
	}
	return nil
}

// Len reports how many codes are cached
func (a *Allocator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byCode)
}

func (a *Allocator) cached(ref models.Ref) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	code, ok := a.forward(ref.Kind)[ref.ID]
	return code, ok
}

func (a *Allocator) lookupCode(code string) (models.Ref, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ref, ok := a.byCode[code]
	return ref, ok
}

func (a *Allocator) remember(ref models.Ref, code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forward(ref.Kind)[ref.ID] = code
	a.byCode[code] = ref
}

// forward must be called with mu held
func (a *Allocator) forward(kind models.Kind) map[int64]string {
	if kind == models.KindBot {
		return a.bots
	}
	return a.humans
}

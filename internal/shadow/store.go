package shadow

import (
	"context"
	"sort"
	"sync"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// InMemoryCodeStore is a threadsafe in-memory CodeStore for tests.
// BeforeInsert, when set, runs ahead of every Insert without the lock held,
// which lets tests play a concurrent allocator.
type InMemoryCodeStore struct {
	mu     sync.Mutex
	byRef  map[models.Ref]string
	byCode map[string]models.Ref

	BeforeInsert func(ref models.Ref, code string)
}

func NewInMemoryCodeStore() *InMemoryCodeStore {
	return &InMemoryCodeStore{
		byRef:  make(map[models.Ref]string),
		byCode: make(map[string]models.Ref),
	}
}

// Put writes an assignment directly without uniqueness checks
func (s *InMemoryCodeStore) Put(ref models.Ref, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRef[ref] = code
	s.byCode[code] = ref
}

func (s *InMemoryCodeStore) LoadAll(ctx context.Context) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, 0, len(s.byRef))
	for ref, code := range s.byRef {
		out = append(out, Assignment{Ref: ref, Code: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *InMemoryCodeStore) Lookup(ctx context.Context, ref models.Ref) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.byRef[ref]
	if !ok {
		return "", apperr.NotFound("no shadow code for %s", ref)
	}
	return code, nil
}

func (s *InMemoryCodeStore) Insert(ctx context.Context, ref models.Ref, code string) error {
	if hook := s.BeforeInsert; hook != nil {
		hook(ref, code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byRef[ref]; ok {
		return ErrAlreadyAssigned
	}
	if _, ok := s.byCode[code]; ok {
		return ErrCodeTaken
	}
	s.byRef[ref] = code
	s.byCode[code] = ref
	return nil
}

func (s *InMemoryCodeStore) Delete(ctx context.Context, ref models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.byRef[ref]; ok {
		delete(s.byCode, code)
		delete(s.byRef, ref)
	}
	return nil
}

// GrantStore persists dynamic covert channel grants
type GrantStore interface {
	// Grant is idempotent
	Grant(ctx context.Context, ref models.Ref) error
	// Revoke reports whether a grant existed
	Revoke(ctx context.Context, ref models.Ref) (bool, error)
	IsGranted(ctx context.Context, ref models.Ref) (bool, error)
	List(ctx context.Context) ([]models.Ref, error)
}

// InMemoryGrantStore is a threadsafe in-memory GrantStore for tests
type InMemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[models.Ref]struct{}
}

func NewInMemoryGrantStore() *InMemoryGrantStore {
	return &InMemoryGrantStore{grants: make(map[models.Ref]struct{})}
}

func (s *InMemoryGrantStore) Grant(ctx context.Context, ref models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[ref] = struct{}{}
	return nil
}

func (s *InMemoryGrantStore) Revoke(ctx context.Context, ref models.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.grants[ref]
	delete(s.grants, ref)
	return ok, nil
}

func (s *InMemoryGrantStore) IsGranted(ctx context.Context, ref models.Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[ref]
	return ok, nil
}

func (s *InMemoryGrantStore) List(ctx context.Context) ([]models.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Ref, 0, len(s.grants))
	for ref := range s.grants {
		out = append(out, ref)
	}
	sortRefs(out)
	return out, nil
}

func sortRefs(refs []models.Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind > refs[j].Kind // humans first
		}
		return refs[i].ID < refs[j].ID
	})
}

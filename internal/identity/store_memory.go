package identity

import (
	"context"
	"sync"
	"time"

	"admin-auth/internal/auth"

	"github.com/samber/lo"
)

// MemoryStore keeps accounts in process. Used for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	byEmail  map[string]string
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[string]Account{},
		byEmail:  map[string]string{},
		clock:    time.Now,
	}
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a.clone(), nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return s.accounts[id].clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, a Account) error {
	if err := validateNew(a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return ErrDuplicate
	}
	email := NormalizeEmail(a.Email)
	if email != "" {
		if _, exists := s.byEmail[email]; exists {
			return ErrDuplicate
		}
	}

	now := s.clock().UTC()
	a = a.clone()
	a.Roles = lo.Uniq(a.Roles)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	s.accounts[a.ID] = a
	if email != "" {
		s.byEmail[email] = a.ID
	}
	return nil
}

func (s *MemoryStore) LinkProvider(_ context.Context, id string, p Provider, externalID string) error {
	if !p.Valid() {
		return ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Provider = p
	a.ExternalID = externalID
	a.UpdatedAt = s.clock().UTC()
	s.accounts[id] = a
	return nil
}

func (s *MemoryStore) AssignRole(_ context.Context, id string, r auth.Role) error {
	if !r.Valid() {
		return ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if lo.Contains(a.Roles, r) {
		return nil
	}
	a.Roles = append(append([]auth.Role(nil), a.Roles...), r)
	a.UpdatedAt = s.clock().UTC()
	s.accounts[id] = a
	return nil
}

package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"github.com/google/uuid"
)

type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]types.Account
	byEmail  map[string]string
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]types.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *AccountStore) Create(ctx context.Context, account types.Account) (types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if _, exists := s.byEmail[account.Email]; exists {
		return types.Account{}, store.ErrDuplicate
	}
	now := time.Now().UTC()
	account.ID = uuid.NewString()
	account.CreatedAt = now
	account.UpdatedAt = now
	s.accounts[account.ID] = account
	s.byEmail[account.Email] = account.ID
	return account, nil
}

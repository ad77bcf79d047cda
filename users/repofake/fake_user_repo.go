package fakeuserrepo

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	accounts map[string]*users.Account
	emailIds map[string]string // email to account id
	linkIds  map[string]string // provider:providerUserID to account id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		accounts: make(map[string]*users.Account),
		emailIds: make(map[string]string),
		linkIds:  make(map[string]string),
	}
}

func linkKey(provider sessions.ProviderID, providerUserID string) string {
	return string(provider) + ":" + providerUserID
}

func (ur *FakeUserRepo) Upsert(account *users.Account) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if prev, ok := ur.accounts[account.ID]; ok {
		delete(ur.emailIds, prev.Email)
		for _, l := range prev.Links {
			delete(ur.linkIds, linkKey(l.Provider, l.ProviderUserID))
		}
	}
	stored := account.Clone()
	ur.accounts[account.ID] = stored
	if stored.Email != "" {
		ur.emailIds[stored.Email] = stored.ID
	}
	for _, l := range stored.Links {
		ur.linkIds[linkKey(l.Provider, l.ProviderUserID)] = stored.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	a, ok := ur.accounts[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return a.Clone(), nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[email]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return ur.accounts[id].Clone(), nil
}

func (ur *FakeUserRepo) GetByProviderLink(provider sessions.ProviderID, providerUserID string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.linkIds[linkKey(provider, providerUserID)]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return ur.accounts[id].Clone(), nil
}

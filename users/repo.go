package users

import "github.com/jrsteele09/agentify-session/sessions"

// Repo stores accounts. Lookups of unknown accounts return errors.ErrNotFound.
type Repo interface {
	Upsert(account *Account) error
	GetByID(id string) (*Account, error)
	GetByEmail(email string) (*Account, error)
	GetByProviderLink(provider sessions.ProviderID, providerUserID string) (*Account, error)
}

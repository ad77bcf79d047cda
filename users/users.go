package users

import (
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength mirrors the identity provider's hard floor
const minPasswordLength = 6

// ProviderLink binds an external provider account to an application account
type ProviderLink struct {
	Provider       sessions.ProviderID `json:"provider"`
	ProviderUserID string              `json:"provider_user_id"`
	Login          string              `json:"login,omitempty"`
	LinkedAt       time.Time           `json:"linked_at"`
}

// Account is an application identity
type Account struct {
	ID           string         `json:"id"`                     // Unique identifier for the account
	Email        string         `json:"email,omitempty"`        // Lower-cased email address
	DisplayName  string         `json:"display_name,omitempty"` // Name shown in the dashboard
	AvatarURL    string         `json:"avatar_url,omitempty"`   // Profile picture
	PasswordHash string         `json:"password_hash,omitempty"`
	Links        []ProviderLink `json:"links,omitempty"` // Linked external providers
	DateJoined   time.Time      `json:"date_joined,omitempty"`
	LastLogin    time.Time      `json:"last_login,omitempty"`
}

// Providers returns the provider set of the account
func (a *Account) Providers() []sessions.ProviderID {
	var providers []sessions.ProviderID
	if a.PasswordHash != "" {
		providers = append(providers, sessions.ProviderPassword)
	}
	for _, l := range a.Links {
		providers = append(providers, l.Provider)
	}
	return providers
}

// Link returns the link for provider, if any
func (a *Account) Link(provider sessions.ProviderID) (ProviderLink, bool) {
	i := slices.IndexFunc(a.Links, func(l ProviderLink) bool { return l.Provider == provider })
	if i < 0 {
		return ProviderLink{}, false
	}
	return a.Links[i], true
}

// SetLink adds or replaces the link for l.Provider
func (a *Account) SetLink(l ProviderLink) {
	a.Links = slices.DeleteFunc(a.Links, func(existing ProviderLink) bool { return existing.Provider == l.Provider })
	a.Links = append(a.Links, l)
}

// Identity projects the account onto a session identity
func (a *Account) Identity() sessions.Identity {
	return sessions.Identity{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		AvatarURL:   a.AvatarURL,
	}
}

// Clone returns a deep copy
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Links = slices.Clone(a.Links)
	return &c
}

// NormalizeEmail validates the address and lower-cases it
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.ErrMalformedEmail
	}
	return email, nil
}

// ValidatePasswordStrength rejects passwords shorter than the provider floor
// or below minEntropy bits.
func ValidatePasswordStrength(password string, minEntropy float64) error {
	if len(password) < minPasswordLength {
		return errors.ErrWeakPassword
	}
	if minEntropy > 0 {
		if err := passwordvalidator.Validate(password, minEntropy); err != nil {
			return errors.Wrapf(errors.ErrWeakPassword, "%s", err.Error())
		}
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

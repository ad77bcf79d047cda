package localidp

import (
	"context"

	"github.com/google/uuid"
	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/users"
)

// SignInWithPassword starts a session for an existing email account
func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (*sessions.Session, error) {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	account, err := p.users.GetByEmail(email)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrUnknownAccount
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[SignInWithPassword] failed to look up account")
	}

	// GitHub-only accounts have no password to match
	if account.PasswordHash == "" || !users.CheckPasswordHash(password, account.PasswordHash) {
		return nil, errors.ErrInvalidCredential
	}

	account.LastLogin = p.nowTime()
	if err := p.users.Upsert(account); err != nil {
		return nil, errors.Wrapf(err, "[SignInWithPassword] failed to update account")
	}
	return p.startSession(account)
}

// RegisterWithPassword creates an email account and signs it in
func (p *Provider) RegisterWithPassword(_ context.Context, email, password string) (*sessions.Session, error) {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := users.ValidatePasswordStrength(password, p.minPasswordBits); err != nil {
		return nil, err
	}

	_, err = p.users.GetByEmail(email)
	if err == nil {
		return nil, errors.ErrEmailInUse
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrapf(err, "[RegisterWithPassword] failed to look up account")
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, errors.Wrapf(err, "[RegisterWithPassword] failed to hash password")
	}

	now := p.nowTime()
	account := &users.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		DateJoined:   now,
		LastLogin:    now,
	}
	if err := p.users.Upsert(account); err != nil {
		return nil, errors.Wrapf(err, "[RegisterWithPassword] failed to create account")
	}
	return p.startSession(account)
}

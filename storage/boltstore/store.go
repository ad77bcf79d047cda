// Package boltstore keeps accounts, the current session and the exchanged
// provider token in a bbolt key/value file.
package boltstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/agentify-session/internal/errors"
	"github.com/jrsteele09/agentify-session/sessions"
	"github.com/jrsteele09/agentify-session/users"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var (
	accountsBucket = []byte("accounts")
	emailsBucket   = []byte("account_emails")
	linksBucket    = []byte("account_links")
	stateBucket    = []byte("state")
	boltBuckets    = [][]byte{accountsBucket, emailsBucket, linksBucket, stateBucket}

	sessionKey     = []byte("session")
	accessTokenKey = []byte("access_token")
)

// Store is the bolt backed store
type Store struct {
	dbHandle *bolt.DB
}

var _ users.Repo = (*Store)(nil)

// Open opens or creates the database file at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[boltstore Open] failed to create data folder: %w", err)
	}
	dbHandle, err := bolt.Open(path, 0o600, &bolt.Options{
		NoGrowSync:   false,
		FreelistType: bolt.FreelistArrayType,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("[boltstore Open] failed to open %s: %w", path, err)
	}

	err = dbHandle.Update(func(tx *bolt.Tx) error {
		for _, bucket := range boltBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("error creating bucket %q: %w", string(bucket), err)
			}
		}
		return nil
	})
	if err != nil {
		dbHandle.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("bolt store opened")
	return &Store{dbHandle: dbHandle}, nil
}

func (s *Store) Close() error {
	return s.dbHandle.Close()
}

func getBucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	bucket := tx.Bucket(name)
	if bucket == nil {
		return nil, fmt.Errorf("unable to find %s bucket, bolt database structure not correctly defined", string(name))
	}
	return bucket, nil
}

func linkKey(provider sessions.ProviderID, providerUserID string) []byte {
	return []byte(string(provider) + ":" + providerUserID)
}

// Upsert stores the account and re-indexes its email and provider links
func (s *Store) Upsert(account *users.Account) error {
	if account == nil || account.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "[boltstore Upsert] account id is required")
	}
	return s.dbHandle.Update(func(tx *bolt.Tx) error {
		accounts, err := getBucket(tx, accountsBucket)
		if err != nil {
			return err
		}
		emails, err := getBucket(tx, emailsBucket)
		if err != nil {
			return err
		}
		links, err := getBucket(tx, linksBucket)
		if err != nil {
			return err
		}

		if data := accounts.Get([]byte(account.ID)); data != nil {
			var previous users.Account
			if err := json.Unmarshal(data, &previous); err != nil {
				return err
			}
			if previous.Email != "" {
				if err := emails.Delete([]byte(previous.Email)); err != nil {
					return err
				}
			}
			for _, l := range previous.Links {
				if err := links.Delete(linkKey(l.Provider, l.ProviderUserID)); err != nil {
					return err
				}
			}
		}

		if account.Email != "" {
			if owner := emails.Get([]byte(account.Email)); owner != nil && string(owner) != account.ID {
				return errors.ErrEmailInUse
			}
			if err := emails.Put([]byte(account.Email), []byte(account.ID)); err != nil {
				return err
			}
		}
		for _, l := range account.Links {
			key := linkKey(l.Provider, l.ProviderUserID)
			if owner := links.Get(key); owner != nil && string(owner) != account.ID {
				return errors.ErrCredentialConflict
			}
			if err := links.Put(key, []byte(account.ID)); err != nil {
				return err
			}
		}

		data, err := json.Marshal(account)
		if err != nil {
			return err
		}
		return accounts.Put([]byte(account.ID), data)
	})
}

func (s *Store) GetByID(id string) (*users.Account, error) {
	var account *users.Account
	err := s.dbHandle.View(func(tx *bolt.Tx) error {
		accounts, err := getBucket(tx, accountsBucket)
		if err != nil {
			return err
		}
		account, err = decodeAccount(accounts.Get([]byte(id)))
		return err
	})
	return account, err
}

func (s *Store) GetByEmail(email string) (*users.Account, error) {
	return s.getByIndex(emailsBucket, []byte(email))
}

func (s *Store) GetByProviderLink(provider sessions.ProviderID, providerUserID string) (*users.Account, error) {
	return s.getByIndex(linksBucket, linkKey(provider, providerUserID))
}

func (s *Store) getByIndex(index, key []byte) (*users.Account, error) {
	var account *users.Account
	err := s.dbHandle.View(func(tx *bolt.Tx) error {
		idx, err := getBucket(tx, index)
		if err != nil {
			return err
		}
		id := idx.Get(key)
		if id == nil {
			return errors.ErrNotFound
		}
		accounts, err := getBucket(tx, accountsBucket)
		if err != nil {
			return err
		}
		account, err = decodeAccount(accounts.Get(id))
		return err
	})
	return account, err
}

func decodeAccount(data []byte) (*users.Account, error) {
	if data == nil {
		return nil, errors.ErrNotFound
	}
	var account users.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &account, nil
}

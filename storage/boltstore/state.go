package boltstore

import (
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/agentify-session/sessions"
	bolt "go.etcd.io/bbolt"
)

func (s *Store) getState(key []byte) ([]byte, error) {
	var value []byte
	err := s.dbHandle.View(func(tx *bolt.Tx) error {
		bucket, err := getBucket(tx, stateBucket)
		if err != nil {
			return err
		}
		if v := bucket.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (s *Store) putState(key, value []byte) error {
	return s.dbHandle.Update(func(tx *bolt.Tx) error {
		bucket, err := getBucket(tx, stateBucket)
		if err != nil {
			return err
		}
		if value == nil {
			return bucket.Delete(key)
		}
		return bucket.Put(key, value)
	})
}

// Sessions returns the session persistence view of the store
func (s *Store) Sessions() *SessionPersistence {
	return &SessionPersistence{store: s}
}

// SessionPersistence keeps the current session in the state bucket
type SessionPersistence struct {
	store *Store
}

func (p *SessionPersistence) Load() (*sessions.Session, error) {
	data, err := p.store.getState(sessionKey)
	if err != nil || data == nil {
		return nil, err
	}
	var session sessions.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (p *SessionPersistence) Save(session *sessions.Session) error {
	if session == nil {
		return p.Clear()
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return p.store.putState(sessionKey, data)
}

func (p *SessionPersistence) Clear() error {
	return p.store.putState(sessionKey, nil)
}

// SaveAccessToken stores the token obtained by redirect completion
func (s *Store) SaveAccessToken(token string) error {
	return s.putState(accessTokenKey, []byte(token))
}

// AccessToken returns the stored token, empty when none
func (s *Store) AccessToken() (string, error) {
	data, err := s.getState(accessTokenKey)
	return string(data), err
}

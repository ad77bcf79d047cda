package config

import (
	"strings"
	"time"
)

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetSessionPersistence() Persistence
	GetExpirySweepSpec() string
	GetMinPasswordEntropy() float64
}

// Persistence selects where the identity provider keeps the current session
type Persistence string

const (
	// PersistenceLocal survives process restarts
	PersistenceLocal Persistence = "local"
	// PersistenceMemory is lost on restart
	PersistenceMemory Persistence = "memory"
)

type Security struct {
	env EnvVars
}

var _ SecurityConfig = Security{}

func (Security) GetMaxSessionAge() time.Duration {
	return 30 * 24 * time.Hour
}

func (s Security) GetSessionPersistence() Persistence {
	if strings.EqualFold(s.env.SessionPersistence, string(PersistenceMemory)) {
		return PersistenceMemory
	}
	return PersistenceLocal
}

func (Security) GetExpirySweepSpec() string {
	return "@every 30s"
}

// GetMinPasswordEntropy is the go-password-validator entropy floor
func (Security) GetMinPasswordEntropy() float64 {
	return 40
}

package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
)

// RS256 is the only algorithm assertions are signed with
const RS256 = "RS256"

const (
	minRSABits   = 2048
	pemBlockType = "RSA PRIVATE KEY"
)

// KeyPair is the RSA key identity assertions are signed with
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// JWKS is the document served at /.well-known/jwks.json
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of a KeyPair
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// GenerateRSAKeyPair creates a fresh key; bits below 2048 are raised to 2048
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	bits = max(bits, minRSABits)

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("[GenerateRSAKeyPair] %w", err)
	}
	return newKeyPair(keyID, privateKey), nil
}

func newKeyPair(keyID string, privateKey *rsa.PrivateKey) *KeyPair {
	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}
}

func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

// MarshalPEM encodes the private key as PKCS#1 PEM
func (kp *KeyPair) MarshalPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemBlockType,
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	})
}

func (kp *KeyPair) ToJWK() (*JWK, error) {
	if kp.PublicKey == nil {
		return nil, errors.New("[KeyPair ToJWK] missing public key")
	}
	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(kp.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(kp.PublicKey.E)).Bytes()),
	}, nil
}

// ParseKeyPairPEM reads a key written by MarshalPEM
func ParseKeyPairPEM(keyID string, data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, errors.New("[ParseKeyPairPEM] no RSA private key block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("[ParseKeyPairPEM] %w", err)
	}
	return newKeyPair(keyID, privateKey), nil
}

// LoadOrCreateKeyPair reads the signing key at path, generating it (mode 0600)
// on first start so assertions survive restarts.
func LoadOrCreateKeyPair(keyID, path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return ParseKeyPairPEM(keyID, data)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("[LoadOrCreateKeyPair] read: %w", err)
	}

	keyPair, err := GenerateRSAKeyPair(keyID, minRSABits)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[LoadOrCreateKeyPair] mkdir: %w", err)
	}
	if err := os.WriteFile(path, keyPair.MarshalPEM(), 0o600); err != nil {
		return nil, fmt.Errorf("[LoadOrCreateKeyPair] write: %w", err)
	}
	return keyPair, nil
}

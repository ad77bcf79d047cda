package keys

import (
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeyPairSigner mints RS256 identity assertions with a single key pair and
// publishes its public half for verifiers.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

// Sign returns claims as a compact JWS carrying the key ID header
func (s *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(s.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = s.keyPair.KeyID

	raw, err := token.SignedString(s.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("[KeyPairSigner Sign] %w", err)
	}
	return raw, nil
}

// KeyFunc is a jwt.Keyfunc accepting only RSA tokens minted under this key ID
func (s *KeyPairSigner) KeyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("[KeyPairSigner KeyFunc] unexpected signing method: %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != s.keyPair.KeyID {
		return nil, fmt.Errorf("[KeyPairSigner KeyFunc] unknown key id %q", kid)
	}
	return s.keyPair.PublicKey, nil
}

func (s *KeyPairSigner) PublicKey() *rsa.PublicKey {
	return s.keyPair.PublicKey
}

// JWKS publishes the verification key at /.well-known/jwks.json
func (s *KeyPairSigner) JWKS() (*JWKS, error) {
	jwk, err := s.keyPair.ToJWK()
	if err != nil {
		return nil, fmt.Errorf("[KeyPairSigner JWKS] %w", err)
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}

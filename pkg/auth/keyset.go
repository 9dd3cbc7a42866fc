package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet supplies the verification key for an incoming bearer token,
// trimmed to verification only — DatumPlan validates tokens issued by
// an external identity provider rather than signing its own.
type KeySet interface {
	KeyFunc() jwt.Keyfunc
}

// StaticKeySet verifies every token against one Ed25519 public key,
// loaded once at startup from PEM.
type StaticKeySet struct {
	public ed25519.PublicKey
}

// NewStaticKeySetFromPEM parses an Ed25519 public key in PEM format.
func NewStaticKeySetFromPEM(pemBytes []byte) (*StaticKeySet, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("auth: no PEM block found in key material")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	key, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: expected an Ed25519 public key, got %T", pub)
	}
	return &StaticKeySet{public: key}, nil
}

func (ks *StaticKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return ks.public, nil
	}
}

package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer signs claims with one private key and advertises its public half.
type Signer struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
}

// NewSigner loads a PKCS8 (or PKCS1 RSA) PEM private key. The algorithm is
// inferred from the key type.
func NewSigner(kid string, pemKey []byte) (*Signer, error) {
	key, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}
	return newSigner(kid, key)
}

func newSigner(kid string, key crypto.Signer) (*Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: signer kid is required")
	}

	var method jwt.SigningMethod
	switch k := key.(type) {
	case ed25519.PrivateKey:
		method = jwt.SigningMethodEdDSA
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("jwtx: unsupported EC curve %s", k.Curve.Params().Name)
		}
		method = jwt.SigningMethodES256
	case *rsa.PrivateKey:
		if k.N.BitLen() < cryptox.MinRSABits {
			return nil, fmt.Errorf("jwtx: RSA key must be at least %d bits", cryptox.MinRSABits)
		}
		method = jwt.SigningMethodRS256
	default:
		return nil, fmt.Errorf("jwtx: unsupported private key %T", key)
	}

	return &Signer{kid: kid, method: method, key: key}, nil
}

func (s *Signer) Alg() string { return s.method.Alg() }
func (s *Signer) KID() string { return s.kid }

// Sign returns the compact JWS for claims with the kid header set.
func (s *Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// PublicJWK returns the verification key for publishing in a JWKS.
func (s *Signer) PublicJWK() (JWK, error) {
	return NewJWK(s.kid, s.Alg(), s.key.Public())
}

package jwtx

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/cryptox"
)

const (
	defaultNumKeys = 3
	maxNumKeys     = 10
	defaultRSABits = 4096
)

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	// Algorithm is one of RS256, ES256, EdDSA. Ignored when PrivateKeyPEM is
	// set, in which case the key type decides.
	Algorithm string

	Issuer   string
	Audience string

	// RSABits for generated RS256 keys. Defaults to 4096.
	RSABits int

	// NumKeys ephemeral signing keys to generate, 1..10, default 3.
	NumKeys int

	// PrivateKeyPEM loads a single persistent signing key instead of
	// generating ephemeral ones.
	PrivateKeyPEM []byte

	// Now is the verifier's time source.
	Now func() time.Time
}

// KeyManager owns the signing keys, the public KeySet and a Verifier bound
// to them.
type KeyManager struct {
	signers   []*Signer
	keys      *KeySet
	verifier  *Verifier
	algorithm string
}

// NewKeyManager builds a manager from opts. Without PrivateKeyPEM the keys
// only live in memory, so every token dies with the process.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	var (
		signers []*Signer
		err     error
	)
	if len(opts.PrivateKeyPEM) > 0 {
		signers, err = loadSigner(opts.PrivateKeyPEM)
	} else {
		signers, err = generateSigners(opts)
	}
	if err != nil {
		return nil, err
	}

	keys := NewKeySet()
	for _, s := range signers {
		if err := keys.AddSigner(s); err != nil {
			return nil, fmt.Errorf("jwtx: publish key %s: %w", s.KID(), err)
		}
	}

	alg := signers[0].Alg()
	return &KeyManager{
		signers: signers,
		keys:    keys,
		verifier: NewVerifier(keys, VerifyOptions{
			Issuer:     opts.Issuer,
			Audience:   opts.Audience,
			Algorithms: []string{alg},
			Now:        opts.Now,
		}),
		algorithm: alg,
	}, nil
}

func loadSigner(pemKey []byte) ([]*Signer, error) {
	key, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, fmt.Errorf("jwtx: marshal public key: %w", err)
	}
	// A stable kid lets verifiers keep caching the JWKS across restarts.
	sum := sha256.Sum256(der)
	s, err := newSigner(base64.RawURLEncoding.EncodeToString(sum[:12]), key)
	if err != nil {
		return nil, err
	}
	return []*Signer{s}, nil
}

func generateSigners(opts KeyManagerOptions) ([]*Signer, error) {
	n := opts.NumKeys
	if n <= 0 {
		n = defaultNumKeys
	}
	n = min(n, maxNumKeys)

	var keyType string
	bits := 0
	switch opts.Algorithm {
	case AlgorithmEdDSA, "":
		keyType = cryptox.KeyEd25519
	case AlgorithmES256:
		keyType = cryptox.KeyP256
	case AlgorithmRS256:
		keyType = cryptox.KeyRSA
		bits = opts.RSABits
		if bits == 0 {
			bits = defaultRSABits
		}
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256, EdDSA)", opts.Algorithm)
	}

	signers := make([]*Signer, 0, n)
	for i := range n {
		pemKey, err := cryptox.GenerateSigningKey(keyType, bits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key %d: %w", i+1, err)
		}
		kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate kid: %w", err)
		}
		s, err := NewSigner("authcore-"+kid, pemKey)
		if err != nil {
			return nil, err
		}
		signers = append(signers, s)
	}
	return signers, nil
}

// Signer picks one of the active signing keys at random.
func (km *KeyManager) Signer() *Signer {
	if len(km.signers) == 1 {
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))] // #nosec G404 -- load spreading, not security
}

func (km *KeyManager) Verifier() *Verifier { return km.verifier }
func (km *KeyManager) KeySet() *KeySet     { return km.keys }
func (km *KeyManager) Algorithm() string   { return km.algorithm }
func (km *KeyManager) IsReady() bool       { return km.keys.IsReady() }

func (km *KeyManager) NumSigners() int { return len(km.signers) }

package jwtx

import (
	"crypto"
	"errors"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

type keyEntry struct {
	key crypto.PublicKey
	alg string
}

// KeySet holds public verification keys by kid. It is safe for concurrent
// use so it can back both the verifier and the JWKS endpoint.
type KeySet struct {
	mu   sync.RWMutex
	jwks JWKS
	keys map[string]keyEntry
}

func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]keyEntry)}
}

// AddSigner publishes the signer's public key.
func (k *KeySet) AddSigner(s *Signer) error {
	j, err := s.PublicJWK()
	if err != nil {
		return err
	}
	return k.AddJWK(j)
}

// AddJWK parses and registers j. Re-adding a kid replaces it.
func (k *KeySet) AddJWK(j JWK) error {
	if j.Kid == "" {
		return errors.New("jwtx: JWK has no kid")
	}
	pub, err := j.PublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[j.Kid]; exists {
		for i := range k.jwks.Keys {
			if k.jwks.Keys[i].Kid == j.Kid {
				k.jwks.Keys = append(k.jwks.Keys[:i], k.jwks.Keys[i+1:]...)
				break
			}
		}
	}
	k.keys[j.Kid] = keyEntry{key: pub, alg: j.Alg}
	k.jwks.Keys = append(k.jwks.Keys, j)
	return nil
}

// Get returns the public key and its bound algorithm for kid.
func (k *KeySet) Get(kid string) (crypto.PublicKey, string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.keys[kid]
	if !ok {
		return nil, "", ErrNoKey
	}
	return e.key, e.alg, nil
}

// PublicJWKS returns a copy of the set for serving.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := JWKS{Keys: make([]JWK, len(k.jwks.Keys))}
	copy(out.Keys, k.jwks.Keys)
	return out
}

// IsReady reports whether at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}

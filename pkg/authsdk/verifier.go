package authsdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"golang.org/x/sync/singleflight"
)

// DefaultMinRefreshInterval bounds how often an unknown kid can trigger a
// JWKS fetch.
const DefaultMinRefreshInterval = time.Minute

// VerifierOptions configures a RemoteVerifier.
type VerifierOptions struct {
	Issuer   string
	Audience string

	// Leeway tolerates clock skew between the services.
	Leeway time.Duration

	// MinRefreshInterval defaults to DefaultMinRefreshInterval.
	MinRefreshInterval time.Duration

	// FetchTimeout bounds a key fetch triggered by Verify. Defaults to 5s.
	FetchTimeout time.Duration

	// Now is the time source; defaults to time.Now.
	Now func() time.Time
}

// RemoteVerifier verifies access tokens against the JWKS published by an
// authcore instance.
type RemoteVerifier struct {
	client *Client
	opts   VerifierOptions
	group  singleflight.Group

	mu          sync.RWMutex
	verifier    *jwtx.Verifier
	lastRefresh time.Time
}

func NewRemoteVerifier(client *Client, opts VerifierOptions) *RemoteVerifier {
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RemoteVerifier{client: client, opts: opts}
}

// Refresh replaces the key set with the one currently published. Concurrent
// callers share a single fetch.
func (v *RemoteVerifier) Refresh(ctx context.Context) error {
	_, err, _ := v.group.Do("jwks", func() (any, error) {
		jwks, err := v.client.GetJWKS(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}

		keys := jwtx.NewKeySet()
		for _, k := range jwks.Keys {
			if err := keys.AddJWK(k); err != nil {
				return nil, fmt.Errorf("load jwk %q: %w", k.Kid, err)
			}
		}

		verifier := jwtx.NewVerifier(keys, jwtx.VerifyOptions{
			Issuer:   v.opts.Issuer,
			Audience: v.opts.Audience,
			Leeway:   v.opts.Leeway,
			Now:      v.opts.Now,
		})

		v.mu.Lock()
		v.verifier = verifier
		v.lastRefresh = v.opts.Now()
		v.mu.Unlock()
		return nil, nil
	})
	return err
}

// Verify returns the claims of a valid access token. Errors wrap
// jwtx.ErrExpired or jwtx.ErrInvalidToken.
func (v *RemoteVerifier) Verify(raw string) (jwtx.Claims, error) {
	verifier, _ := v.current()
	if verifier == nil {
		if err := v.refresh(); err != nil {
			return jwtx.Claims{}, fmt.Errorf("%w: %w", jwtx.ErrInvalidToken, err)
		}
		verifier, _ = v.current()
	}

	claims, err := verifier.Verify(raw)
	if !errors.Is(err, jwtx.ErrUnknownKID) {
		return claims, err
	}

	// The issuer may have rotated keys since the last fetch.
	if _, stale := v.current(); !stale {
		return jwtx.Claims{}, err
	}
	if ferr := v.refresh(); ferr != nil {
		return jwtx.Claims{}, err
	}
	verifier, _ = v.current()
	return verifier.Verify(raw)
}

func (v *RemoteVerifier) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), v.opts.FetchTimeout)
	defer cancel()
	return v.Refresh(ctx)
}

// current returns the active verifier and whether a refetch is allowed.
func (v *RemoteVerifier) current() (*jwtx.Verifier, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.verifier, v.opts.Now().Sub(v.lastRefresh) >= v.opts.MinRefreshInterval
}

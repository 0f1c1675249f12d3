package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is the umbrella for every verification failure other
	// than expiry. The wrapped detail is for logs, never for callers.
	ErrInvalidToken = errors.New("jwtx: invalid token")
	// ErrExpired is only reported once signature and every other claim check
	// have passed.
	ErrExpired = errors.New("jwtx: token expired")

	ErrUnknownKID    = errors.New("jwtx: unknown kid")
	ErrTokenType     = errors.New("jwtx: token type mismatch")
	ErrIssuer        = errors.New("jwtx: issuer mismatch")
	ErrAudience      = errors.New("jwtx: audience mismatch")
	ErrNotYetValid   = errors.New("jwtx: token not yet valid")
	ErrMissingExpiry = errors.New("jwtx: missing exp claim")
)

// VerifyOptions captures what a verifier expects of a token.
type VerifyOptions struct {
	Issuer    string
	Audience  string
	TokenType string // defaults to TokenTypeAccess

	// Algorithms accepted in the header. Defaults to all supported.
	Algorithms []string

	// Leeway tolerates clock skew on nbf/exp.
	Leeway time.Duration

	// Now is the time source; defaults to time.Now.
	Now func() time.Time
}

// Verifier validates compact JWS access tokens against a KeySet.
type Verifier struct {
	keys   *KeySet
	opts   VerifyOptions
	parser *jwt.Parser
}

func NewVerifier(keys *KeySet, opts VerifyOptions) *Verifier {
	if opts.TokenType == "" {
		opts.TokenType = TokenTypeAccess
	}
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = []string{AlgorithmEdDSA, AlgorithmES256, AlgorithmRS256}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Verifier{
		keys: keys,
		opts: opts,
		// Claims are checked below so that expiry is only reported for
		// otherwise valid tokens.
		parser: jwt.NewParser(
			jwt.WithValidMethods(opts.Algorithms),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Verify returns the claims of a valid token. Errors wrap either
// ErrExpired or ErrInvalidToken.
func (v *Verifier) Verify(raw string) (Claims, error) {
	var claims Claims
	tok, err := v.parser.ParseWithClaims(raw, &claims, v.keyFunc)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return Claims{}, ErrInvalidToken
	}

	checks := []error{
		claims.ValidateType(v.opts.TokenType),
		claims.ValidateIssuer(v.opts.Issuer),
		claims.ValidateAudience(v.opts.Audience),
	}
	if claims.Subject == "" {
		checks = append(checks, errors.New("jwtx: missing sub claim"))
	}
	for _, err := range checks {
		if err != nil {
			return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}

	if err := claims.ValidateTimes(v.opts.Now(), v.opts.Leeway); err != nil {
		if errors.Is(err, ErrExpired) {
			return Claims{}, err
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("jwtx: missing kid")
	}
	key, alg, err := v.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}
	if alg != "" && alg != t.Method.Alg() {
		return nil, fmt.Errorf("jwtx: kid %q is bound to %s", kid, alg)
	}
	return key, nil
}

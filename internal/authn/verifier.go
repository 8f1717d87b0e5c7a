package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sensorvault/upload-gateway/internal/config"
)

// ErrInvalidToken is returned when a bearer token fails signature,
// expiry, issuer, or audience verification.
var ErrInvalidToken = errors.New("authn: invalid bearer token")

// Verifier checks a raw bearer token string and returns the principal it
// authenticates.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (User, error)
}

// Refresher is implemented by verifiers that can refresh their cached key
// material on demand, independent of their normal lazy-refresh schedule.
// The jwks verifier implements it; the static verifier does not, since it
// has no remote source to re-fetch.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// NewVerifier builds the Verifier selected by cfg.Auth.Type.
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Type {
	case "jwks":
		return newJWKSVerifier(cfg), nil
	case "static":
		return newStaticVerifier(cfg)
	default:
		return nil, fmt.Errorf("authn: unknown auth type %q", cfg.Type)
	}
}

// jwksVerifier validates RS256/ES256 tokens against keys fetched from a
// JWKS endpoint, matching by "kid".
type jwksVerifier struct {
	source   *jwksSource
	issuer   string
	audience string
}

func newJWKSVerifier(cfg config.AuthConfig) *jwksVerifier {
	source := newJWKSSource(cfg.JWKSURL, cfg.JWKSCachePath)
	source.warm()

	return &jwksVerifier{source: source, issuer: cfg.Issuer, audience: cfg.Audience}
}

func (v *jwksVerifier) Verify(ctx context.Context, rawToken string) (User, error) {
	keys, err := v.source.keySet(ctx)
	if err != nil {
		return User{}, fmt.Errorf("%w: fetching keys: %v", ErrInvalidToken, err)
	}

	claims := jwt.MapClaims{}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "ES256"})}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	_, err = jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)

		key, ok := keys.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}

		return key, nil
	}, parserOpts...)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return userFromClaims(claims)
}

// Refresh forces an immediate JWKS fetch, bypassing the normal refresh
// interval. Implements Refresher.
func (v *jwksVerifier) Refresh(ctx context.Context) error {
	_, err := v.source.forceRefresh(ctx)
	return err
}

func userFromClaims(claims jwt.MapClaims) (User, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return User{}, fmt.Errorf("%w: token missing sub claim", ErrInvalidToken)
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}

	return User{ID: sub, DisplayName: name}, nil
}

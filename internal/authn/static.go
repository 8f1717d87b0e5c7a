package authn

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sensorvault/upload-gateway/internal/config"
)

// staticKeyFile is the on-disk format for the "static" auth type: a flat
// map of key ID to base64url-encoded Ed25519 public key. Intended for
// integration tests and air-gapped deployments where there is no JWKS
// endpoint to reach.
type staticKeyFile struct {
	Keys map[string]string `json:"keys"`
}

type staticVerifier struct {
	keys     map[string]ed25519.PublicKey
	issuer   string
	audience string
}

func newStaticVerifier(cfg config.AuthConfig) (*staticVerifier, error) {
	data, err := os.ReadFile(cfg.StaticKeysPath)
	if err != nil {
		return nil, fmt.Errorf("authn: reading static keys file %s: %w", cfg.StaticKeysPath, err)
	}

	var skf staticKeyFile
	if err := json.Unmarshal(data, &skf); err != nil {
		return nil, fmt.Errorf("authn: decoding static keys file %s: %w", cfg.StaticKeysPath, err)
	}

	if len(skf.Keys) == 0 {
		return nil, fmt.Errorf("authn: static keys file %s contains no keys", cfg.StaticKeysPath)
	}

	keys := make(map[string]ed25519.PublicKey, len(skf.Keys))

	for kid, encoded := range skf.Keys {
		raw, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("authn: decoding static key %q: %w", kid, err)
		}

		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("authn: static key %q has wrong length %d", kid, len(raw))
		}

		keys[kid] = ed25519.PublicKey(raw)
	}

	return &staticVerifier{keys: keys, issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

func (v *staticVerifier) Verify(_ context.Context, rawToken string) (User, error) {
	claims := jwt.MapClaims{}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"EdDSA"})}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)

		key, ok := v.keys[kid]
		if !ok {
			return nil, errors.New("unknown signing key")
		}

		return key, nil
	}, parserOpts...)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return userFromClaims(claims)
}

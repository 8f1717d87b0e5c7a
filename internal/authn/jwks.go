package authn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// jwksRefreshInterval is how long a fetched key set is trusted before the
// next token verification triggers a refresh. Stale keys are still served from cache
// if a refresh fails, so a transient outage at the identity provider
// doesn't take the gateway down.
const jwksRefreshInterval = 10 * time.Minute

// jwksFetchTimeout bounds a single HTTP round trip to the JWKS endpoint.
const jwksFetchTimeout = 5 * time.Second

// rawJWK is the subset of RFC 7517 fields this gateway understands: RSA
// and EC public keys used for signature verification. No private-key or
// symmetric fields are parsed.
type rawJWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA
	N string `json:"n"`
	E string `json:"e"`
	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type rawJWKSet struct {
	Keys []rawJWK `json:"keys"`
}

// jwksKeySet holds parsed public keys indexed by "kid", the form
// golang-jwt's Keyfunc needs at verification time.
type jwksKeySet struct {
	keys map[string]any
}

func parseJWKSBody(body []byte) (*jwksKeySet, error) {
	var set rawJWKSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("authn: decoding jwks body: %w", err)
	}

	keys := make(map[string]any, len(set.Keys))

	for _, k := range set.Keys {
		pub, err := parseJWK(k)
		if err != nil {
			// Skip key types this gateway doesn't understand (e.g. "oct")
			// rather than failing the whole set over one unusable entry.
			continue
		}

		keys[k.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, errors.New("authn: jwks body contained no usable RSA or EC keys")
	}

	return &jwksKeySet{keys: keys}, nil
}

func parseJWK(k rawJWK) (any, error) {
	switch k.Kty {
	case "RSA":
		return parseRSAJWK(k)
	case "EC":
		return parseECJWK(k)
	default:
		return nil, fmt.Errorf("authn: unsupported key type %q", k.Kty)
	}
}

func parseRSAJWK(k rawJWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("authn: decoding RSA modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("authn: decoding RSA exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

func parseECJWK(k rawJWK) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve

	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("authn: unsupported EC curve %q", k.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("authn: decoding EC x coordinate: %w", err)
	}

	yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("authn: decoding EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func fetchJWKS(ctx context.Context, url string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("authn: building jwks request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authn: fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authn: jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authn: reading jwks response: %w", err)
	}

	return body, nil
}

// jwksSource fetches, parses, and caches a remote JWKS document, refreshing
// it periodically and falling back to the last-known-good key set (disk
// cache included) when a refresh fails.
type jwksSource struct {
	url       string
	cachePath string

	mu          sync.RWMutex
	keys        *jwksKeySet
	lastFetched time.Time
}

func newJWKSSource(url, cachePath string) *jwksSource {
	return &jwksSource{url: url, cachePath: cachePath}
}

// warm loads the disk cache (if any) so the gateway can verify tokens
// immediately after a restart, before the first live fetch completes.
func (s *jwksSource) warm() {
	if s.cachePath == "" {
		return
	}

	body, fetchedAtUnix, err := loadJWKSCache(s.cachePath)
	if err != nil || body == nil {
		return
	}

	keys, err := parseJWKSBody(body)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.keys = keys
	s.lastFetched = time.Unix(fetchedAtUnix, 0)
	s.mu.Unlock()
}

// forceRefresh fetches the key set from the network unconditionally,
// ignoring jwksRefreshInterval. Used when an operator signals the
// gateway to pick up rotated keys immediately rather than waiting for
// the next lazy refresh.
func (s *jwksSource) forceRefresh(ctx context.Context) (*jwksKeySet, error) {
	s.mu.Lock()
	s.lastFetched = time.Time{}
	s.mu.Unlock()

	return s.keySet(ctx)
}

// keySet returns the current key set, refreshing it from the network if
// the cached copy is stale enough to warrant it. A stale-but-present key
// set is always preferred over a hard failure.
func (s *jwksSource) keySet(ctx context.Context) (*jwksKeySet, error) {
	s.mu.RLock()
	keys := s.keys
	fresh := time.Since(s.lastFetched) < jwksRefreshInterval
	s.mu.RUnlock()

	if keys != nil && fresh {
		return keys, nil
	}

	body, err := fetchJWKS(ctx, s.url)
	if err != nil {
		if keys != nil {
			return keys, nil
		}

		return nil, err
	}

	parsed, err := parseJWKSBody(body)
	if err != nil {
		if keys != nil {
			return keys, nil
		}

		return nil, err
	}

	now := time.Now()

	s.mu.Lock()
	s.keys = parsed
	s.lastFetched = now
	s.mu.Unlock()

	if s.cachePath != "" {
		_ = saveJWKSCache(s.cachePath, body, now.Unix())
	}

	return parsed, nil
}

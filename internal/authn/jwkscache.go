// Package authn verifies the bearer token on every request and attaches the
// resulting principal to the request context. Two verifier implementations
// are supported: "jwks" (fetch and cache signing keys from a JWKS endpoint)
// and "static" (fixed key material, for tests and air-gapped deployments).
package authn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// jwksCacheFilePerms restricts the cached JWKS document to owner-only
// read/write — it's public key material, but there's no reason to let
// other local users tamper with it between fetches.
const jwksCacheFilePerms = 0o600

// jwksCacheDirPerms is used when creating the cache directory.
const jwksCacheDirPerms = 0o700

// jwksCacheFile is the on-disk format for a cached JWKS document.
type jwksCacheFile struct {
	FetchedAtUnix int64           `json:"fetched_at_unix"`
	Body          json.RawMessage `json:"body"`
}

// loadJWKSCache reads a cached JWKS document from disk. Returns (nil, 0,
// nil) if the file does not exist — a cold cache is not an error.
func loadJWKSCache(path string) (json.RawMessage, int64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, 0, fmt.Errorf("authn: reading jwks cache %s: %w", path, err)
	}

	var cf jwksCacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, 0, fmt.Errorf("authn: decoding jwks cache %s: %w", path, err)
	}

	return cf.Body, cf.FetchedAtUnix, nil
}

// saveJWKSCache writes a JWKS document to disk atomically (write-to-temp +
// rename) with 0600 permissions.
func saveJWKSCache(path string, body json.RawMessage, fetchedAtUnix int64) error {
	cf := jwksCacheFile{FetchedAtUnix: fetchedAtUnix, Body: body}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("authn: encoding jwks cache: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, jwksCacheDirPerms); mkErr != nil {
		return fmt.Errorf("authn: creating jwks cache directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".jwks-*.tmp")
	if err != nil {
		return fmt.Errorf("authn: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, jwksCacheFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("authn: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("authn: writing: %w", err)
	}

	// Flush to stable storage before rename so a crash between close and
	// rename cannot leave an empty or partial cache file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("authn: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("authn: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("authn: renaming: %w", err)
	}

	success = true

	return nil
}

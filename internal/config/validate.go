package config

import (
	"errors"
	"fmt"
)

// Validation range constants.
const (
	minPort              = 1
	maxPort              = 65535
	minExpirationMillis  = int64(60 * 1000)
	minPayloadLimitBytes = int64(1)
)

var validStorageTypes = map[string]bool{
	"filesystem": true,
	"gridfs":     true,
	"s3":         true,
}

var validAuthTypes = map[string]bool{
	"jwks":   true,
	"static": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found. It
// accumulates every error rather than stopping at the first, so operators
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateHTTP(&cfg.HTTP)...)
	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	return errors.Join(errs...)
}

func validateHTTP(h *HTTPConfig) []error {
	var errs []error

	if h.Host == "" {
		errs = append(errs, errors.New("http.host: must not be empty"))
	}

	if h.Port < minPort || h.Port > maxPort {
		errs = append(errs, fmt.Errorf("http.port: must be between %d and %d, got %d", minPort, maxPort, h.Port))
	}

	if h.Path == "" {
		errs = append(errs, errors.New("http.path: must not be empty"))
	}

	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		errs = append(errs, errors.New("http: tls_cert_file and tls_key_file must both be set or both be empty"))
	}

	return errs
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	if u.ExpirationMillis < minExpirationMillis {
		errs = append(errs, fmt.Errorf("upload.expiration_millis: must be >= %d, got %d",
			minExpirationMillis, u.ExpirationMillis))
	}

	if u.PayloadLimitBytes < minPayloadLimitBytes {
		errs = append(errs, fmt.Errorf("upload.payload_limit_bytes: must be >= %d, got %d",
			minPayloadLimitBytes, u.PayloadLimitBytes))
	}

	if u.TempDir == "" {
		errs = append(errs, errors.New("upload.temp_dir: must not be empty"))
	}

	return errs
}

func validateStorage(s *StorageConfig) []error {
	var errs []error

	if !validStorageTypes[s.Type] {
		errs = append(errs, fmt.Errorf("storage.type: must be one of filesystem, gridfs, s3; got %q", s.Type))

		return errs
	}

	switch s.Type {
	case "filesystem":
		if s.Filesystem.BlobDir == "" {
			errs = append(errs, errors.New("storage.filesystem.blob_dir: must not be empty"))
		}

		if s.Filesystem.DBPath == "" {
			errs = append(errs, errors.New("storage.filesystem.db_path: must not be empty"))
		}
	case "gridfs":
		if s.GridFS.URI == "" {
			errs = append(errs, errors.New("storage.gridfs.uri: must not be empty"))
		}

		if s.GridFS.Database == "" {
			errs = append(errs, errors.New("storage.gridfs.database: must not be empty"))
		}

		if s.GridFS.BucketName == "" {
			errs = append(errs, errors.New("storage.gridfs.bucket_name: must not be empty"))
		}
	case "s3":
		if s.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket: must not be empty"))
		}

		if s.S3.Region == "" && s.S3.Endpoint == "" {
			errs = append(errs, errors.New("storage.s3: either region or endpoint must be set"))
		}
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if !validAuthTypes[a.Type] {
		errs = append(errs, fmt.Errorf("auth.type: must be one of jwks, static; got %q", a.Type))

		return errs
	}

	switch a.Type {
	case "jwks":
		if a.JWKSURL == "" {
			errs = append(errs, errors.New("auth.jwks_url: must not be empty when auth.type is \"jwks\""))
		}
	case "static":
		if a.StaticKeysPath == "" {
			errs = append(errs, errors.New("auth.static_keys_path: must not be empty when auth.type is \"static\""))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateMetrics(m *MetricsConfig) []error {
	var errs []error

	if !m.Enabled {
		return errs
	}

	if m.Host == "" {
		errs = append(errs, errors.New("metrics.host: must not be empty when metrics.enabled is true"))
	}

	if m.Port < minPort || m.Port > maxPort {
		errs = append(errs, fmt.Errorf("metrics.port: must be between %d and %d, got %d", minPort, maxPort, m.Port))
	}

	return errs
}

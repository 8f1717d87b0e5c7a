package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w, showing the effective values after all three
// override layers (defaults -> file -> env) have been applied.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	renderHTTPSection(ew, &cfg.HTTP)
	renderUploadSection(ew, &cfg.Upload)
	renderStorageSection(ew, &cfg.Storage)
	renderAuthSection(ew, &cfg.Auth)
	renderLoggingSection(ew, &cfg.Logging)
	renderMetricsSection(ew, &cfg.Metrics)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain printf
// calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderHTTPSection(ew *errWriter, h *HTTPConfig) {
	ew.printf("[http]\n")
	ew.printf("  host = %q\n", h.Host)
	ew.printf("  port = %d\n", h.Port)
	ew.printf("  path = %q\n", h.Path)

	if h.TLSCertFile != "" {
		ew.printf("  tls_cert_file = %q\n", h.TLSCertFile)
		ew.printf("  tls_key_file  = %q\n", h.TLSKeyFile)
	}

	ew.printf("\n")
}

func renderUploadSection(ew *errWriter, u *UploadConfig) {
	ew.printf("[upload]\n")
	ew.printf("  expiration_millis   = %d\n", u.ExpirationMillis)
	ew.printf("  payload_limit_bytes = %d\n", u.PayloadLimitBytes)
	ew.printf("  temp_dir            = %q\n", u.TempDir)
	ew.printf("\n")
}

func renderStorageSection(ew *errWriter, s *StorageConfig) {
	ew.printf("[storage]\n")
	ew.printf("  type = %q\n", s.Type)

	switch s.Type {
	case "filesystem":
		ew.printf("  [storage.filesystem]\n")
		ew.printf("    blob_dir = %q\n", s.Filesystem.BlobDir)
		ew.printf("    db_path  = %q\n", s.Filesystem.DBPath)
	case "gridfs":
		ew.printf("  [storage.gridfs]\n")
		ew.printf("    uri         = %q\n", s.GridFS.URI)
		ew.printf("    database    = %q\n", s.GridFS.Database)
		ew.printf("    bucket_name = %q\n", s.GridFS.BucketName)
	case "s3":
		ew.printf("  [storage.s3]\n")
		ew.printf("    bucket   = %q\n", s.S3.Bucket)
		ew.printf("    region   = %q\n", s.S3.Region)
		ew.printf("    endpoint = %q\n", s.S3.Endpoint)
		ew.printf("    prefix   = %q\n", s.S3.Prefix)
	}

	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("  type = %q\n", a.Type)

	switch a.Type {
	case "jwks":
		ew.printf("  jwks_url        = %q\n", a.JWKSURL)
		ew.printf("  jwks_cache_path = %q\n", a.JWKSCachePath)
	case "static":
		ew.printf("  static_keys_path = %q\n", a.StaticKeysPath)
	}

	if a.Issuer != "" {
		ew.printf("  issuer   = %q\n", a.Issuer)
	}

	if a.Audience != "" {
		ew.printf("  audience = %q\n", a.Audience)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderMetricsSection(ew *errWriter, m *MetricsConfig) {
	ew.printf("[metrics]\n")
	ew.printf("  enabled = %t\n", m.Enabled)

	if m.Enabled {
		ew.printf("  host = %q\n", m.Host)
		ew.printf("  port = %d\n", m.Port)
	}
}

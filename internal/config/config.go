// Package config implements TOML configuration loading, validation, and
// environment-variable overrides for the upload gateway.
package config

// Config is the top-level configuration structure for the server.
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	Upload  UploadConfig  `toml:"upload"`
	Storage StorageConfig `toml:"storage"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// HTTPConfig controls the listener and the resumable-upload URL shape.
type HTTPConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// Path is the endpoint prefix under which /measurements is mounted,
	// e.g. "/api/v3" yields "/api/v3/measurements".
	Path string `toml:"path"`
	// TLSCertFile/TLSKeyFile enable HTTPS when both are set. When unset the
	// server expects TLS to be terminated by a trusted reverse proxy and
	// honors X-Forwarded-Proto when building resumable location URLs.
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
}

// UploadConfig controls session lifetime and payload limits.
type UploadConfig struct {
	// ExpirationMillis is both the reaper tick interval and the session TTL.
	ExpirationMillis int64 `toml:"expiration_millis"`
	// PayloadLimitBytes is the maximum declared total size of an upload.
	PayloadLimitBytes int64 `toml:"payload_limit_bytes"`
	// TempDir holds in-flight temporary chunk files, one per session.
	TempDir string `toml:"temp_dir"`
}

// StorageConfig selects and configures the C5 storage backend. Type is one
// of "filesystem", "gridfs", or "s3"; the matching sub-section is read.
type StorageConfig struct {
	Type       string           `toml:"type"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	GridFS     GridFSConfig     `toml:"gridfs"`
	S3         S3Config         `toml:"s3"`
}

// FilesystemConfig backs the "filesystem" storage type: blobs on local disk
// indexed by an embedded SQLite database.
type FilesystemConfig struct {
	BlobDir string `toml:"blob_dir"`
	DBPath  string `toml:"db_path"`
}

// GridFSConfig backs the "gridfs" storage type.
type GridFSConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	BucketName string `toml:"bucket_name"`
}

// S3Config backs the "s3" storage type, or any S3-compatible object store.
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

// AuthConfig selects bearer-token verification. Type is "jwks" (fetch and
// cache signing keys from a JWKS endpoint) or "static" (fixed key material,
// used for tests and air-gapped deployments).
type AuthConfig struct {
	Type           string `toml:"type"`
	JWKSURL        string `toml:"jwks_url"`
	JWKSCachePath  string `toml:"jwks_cache_path"`
	StaticKeysPath string `toml:"static_keys_path"`
	Issuer         string `toml:"issuer"`
	Audience       string `toml:"audience"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

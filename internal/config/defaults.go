package config

// Default values for configuration options. These represent the "layer 0"
// of the three-layer override chain (defaults -> file -> env) and are
// chosen to be safe, reasonable starting points that work without any
// config file at all.
const (
	defaultHost = "0.0.0.0"
	defaultPort = 8443
	defaultPath = "/api/v3"

	defaultExpirationMillis  = int64(15 * 60 * 1000)
	defaultPayloadLimitBytes = int64(5 * 1024 * 1024 * 1024)
	defaultTempDir           = "/var/lib/upload-gateway/tmp"

	defaultStorageType = "filesystem"
	defaultBlobDir     = "/var/lib/upload-gateway/blobs"
	defaultDBPath      = "/var/lib/upload-gateway/index.db"

	defaultGridFSBucketName = "measurements"

	defaultS3Prefix = "measurements/"

	defaultAuthType = "jwks"

	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	defaultMetricsEnabled = false
	defaultMetricsHost    = "127.0.0.1"
	defaultMetricsPort    = 9090
)

// DefaultConfig returns a Config populated with all default values. This is
// used both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		HTTP:    defaultHTTPConfig(),
		Upload:  defaultUploadConfig(),
		Storage: defaultStorageConfig(),
		Auth:    defaultAuthConfig(),
		Logging: defaultLoggingConfig(),
		Metrics: defaultMetricsConfig(),
	}
}

func defaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host: defaultHost,
		Port: defaultPort,
		Path: defaultPath,
	}
}

func defaultUploadConfig() UploadConfig {
	return UploadConfig{
		ExpirationMillis:  defaultExpirationMillis,
		PayloadLimitBytes: defaultPayloadLimitBytes,
		TempDir:           defaultTempDir,
	}
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{
		Type: defaultStorageType,
		Filesystem: FilesystemConfig{
			BlobDir: defaultBlobDir,
			DBPath:  defaultDBPath,
		},
		GridFS: GridFSConfig{
			BucketName: defaultGridFSBucketName,
		},
		S3: S3Config{
			Prefix: defaultS3Prefix,
		},
	}
}

func defaultAuthConfig() AuthConfig {
	return AuthConfig{
		Type: defaultAuthType,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: defaultMetricsEnabled,
		Host:    defaultMetricsHost,
		Port:    defaultMetricsPort,
	}
}

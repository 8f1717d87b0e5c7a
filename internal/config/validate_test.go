package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.Filesystem.BlobDir = "/data/blobs"
	cfg.Storage.Filesystem.DBPath = "/data/index.db"
	cfg.Auth.Type = "static"
	cfg.Auth.StaticKeysPath = "/data/keys.json"

	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsBadHTTPPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.port")
}

func TestValidateRejectsMismatchedTLSFiles(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.TLSCertFile = "/etc/cert.pem"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls_cert_file")
}

func TestValidateRejectsUnknownStorageType(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "bigtable"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.type")
}

func TestValidateGridFSRequiresURI(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "gridfs"
	cfg.Storage.GridFS.Database = "measurements"
	cfg.Storage.GridFS.BucketName = "blobs"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.gridfs.uri")
}

func TestValidateS3RequiresRegionOrEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "s3"
	cfg.Storage.S3.Bucket = "measurements"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region or endpoint")
}

func TestValidateJWKSAuthRequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Type = "jwks"
	cfg.Auth.StaticKeysPath = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwks_url")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.LogLevel = "verbose"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.log_level")
}

func TestValidateMetricsRequiresHostAndPortWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Host = ""
	cfg.Metrics.Port = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.host")
	assert.Contains(t, err.Error(), "metrics.port")
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = -1
	cfg.Logging.LogLevel = "bogus"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.port")
	assert.Contains(t, err.Error(), "logging.log_level")
}

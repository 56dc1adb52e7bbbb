package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv(EnvAccessKey, "")
	t.Setenv(EnvSecretKey, "")

	c, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, []string{".zip"}, c.Formats)
	assert.Equal(t, 64<<10, c.ChunkSize)
	assert.Equal(t, "deflate", c.Compression.Method)
	assert.Equal(t, 4, c.Concurrency)
	assert.Equal(t, StorageFile, c.Storage.Kind)
	assert.Equal(t, ".", c.Storage.Dir)
	assert.Equal(t, SidecarDisk, c.Sidecar.Kind)
	assert.Equal(t, ".", c.Sidecar.Dir)
	assert.Equal(t, ".listing", c.Sidecar.Suffix)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
}

func TestParse_Full(t *testing.T) {
	t.Setenv(EnvAccessKey, "")
	t.Setenv(EnvSecretKey, "")

	const doc = `
formats: [".zip", ".jar"]
max_entries: 1000
chunk_size: 4096
prefetch: -1
concurrency: 8
compression:
  method: zstd
  level: 3
cache:
  ttl: 30s
  max_entries: 16
storage:
  kind: minio
  endpoint: localhost:9000
  bucket: records
  access_key: key
  secret_key: secret
sidecar:
  kind: minio
  prefix: listings/
log:
  level: debug
  format: json
`
	c, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{".zip", ".jar"}, c.Formats)
	assert.Equal(t, 1000, c.MaxEntries)
	assert.Equal(t, 4096, c.ChunkSize)
	assert.Equal(t, int64(-1), c.Prefetch)
	assert.Equal(t, 8, c.Concurrency)
	assert.Equal(t, Compression{Method: "zstd", Level: 3}, c.Compression)
	assert.Equal(t, Cache{TTL: 30 * time.Second, MaxEntries: 16}, c.Cache)
	assert.Equal(t, "records", c.Sidecar.Bucket, "sidecar bucket defaults to storage bucket")
	assert.Equal(t, "key", c.Storage.AccessKey)
	assert.Equal(t, "json", c.Log.Format)
}

func TestParse_EnvOverridesCredentials(t *testing.T) {
	t.Setenv(EnvAccessKey, "env-key")
	t.Setenv(EnvSecretKey, "env-secret")

	c, err := Parse(strings.NewReader("storage:\n  kind: s3\n  bucket: b\n  access_key: file-key\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.Storage.AccessKey)
	assert.Equal(t, "env-secret", c.Storage.SecretKey)
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv(EnvAccessKey, "")
	t.Setenv(EnvSecretKey, "")

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "bogus: 1\n", "bogus"},
		{"format without dot", "formats: [zip]\n", "formats"},
		{"negative entries", "max_entries: -1\n", "max_entries"},
		{"bad method", "compression:\n  method: lzma\n", "compression.method"},
		{"unknown storage", "storage:\n  kind: ftp\n", "storage.kind"},
		{"http without url", "storage:\n  kind: http\n", "storage.url"},
		{"minio without bucket", "storage:\n  kind: minio\n  endpoint: x:9000\n", "storage.bucket"},
		{"oci without repository", "storage:\n  kind: oci\n", "storage.repository"},
		{"minio sidecar on file storage", "sidecar:\n  kind: minio\n", "sidecar.kind"},
		{"disk sidecar without dir", "storage:\n  kind: s3\n  bucket: b\n", "sidecar.dir"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvAccessKey, "")
	t.Setenv(EnvSecretKey, "")
	dir := t.TempDir()

	c, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StorageFile, c.Storage.Kind)

	path := filepath.Join(dir, "ziptoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  dir: /data\n"), 0o600))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data", c.Storage.Dir)
	assert.Equal(t, "/data", c.Sidecar.Dir)

	require.NoError(t, os.WriteFile(path, []byte("storage: [\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLog_Logger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Log{Level: "warn", Format: "json"}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	Log{Level: "warn", Format: "json"}.Logger(&buf).Warn("shown", "archive", "a.zip")
	assert.Contains(t, buf.String(), `"archive":"a.zip"`)

	buf.Reset()
	Log{Level: "debug", Format: "text"}.Logger(&buf).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

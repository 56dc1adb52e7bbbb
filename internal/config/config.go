// Package config loads the ziptoc command configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/meigma/ziptoc/internal/zipfmt"
)

// Environment variables that override configured credentials.
const (
	EnvAccessKey = "ZIPTOC_ACCESS_KEY"
	EnvSecretKey = "ZIPTOC_SECRET_KEY"
)

// Storage kinds.
const (
	StorageFile  = "file"
	StorageHTTP  = "http"
	StorageMinio = "minio"
	StorageS3    = "s3"
	StorageOCI   = "oci"
)

// Sidecar kinds.
const (
	SidecarDisk   = "disk"
	SidecarMemory = "memory"
	SidecarMinio  = "minio"
)

// Config is the command configuration, usually read from ziptoc.yaml.
type Config struct {
	// Formats lists the archive extensions to index. Default [".zip"].
	Formats []string `yaml:"formats"`
	// MaxEntries caps indexed files per archive. Zero is unlimited.
	MaxEntries int `yaml:"max_entries"`
	// ChunkSize is the streaming unit in bytes. Default 64 KiB.
	ChunkSize int `yaml:"chunk_size"`
	// Prefetch is how many trailing bytes indexing fetches up front.
	// Zero selects 64 KiB and a negative value disables prefetching.
	Prefetch    int64       `yaml:"prefetch"`
	Compression Compression `yaml:"compression"`
	Cache       Cache       `yaml:"cache"`
	// Concurrency bounds parallel indexing in bulk commands. Default 4.
	Concurrency int     `yaml:"concurrency"`
	Storage     Storage `yaml:"storage"`
	Sidecar     Sidecar `yaml:"sidecar"`
	Log         Log     `yaml:"log"`
}

// Compression selects how directories are re-packaged.
type Compression struct {
	Method string `yaml:"method"`
	Level  int    `yaml:"level"`
	// MaxDecoderMemory caps zstd decoder memory in bytes.
	MaxDecoderMemory uint64 `yaml:"max_decoder_memory"`
}

// Cache configures the in-memory index cache.
type Cache struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// Storage locates archives.
type Storage struct {
	Kind string `yaml:"kind"`
	// Dir is the root directory for file storage.
	Dir string `yaml:"dir"`
	// URL is the base URL for http storage.
	URL string `yaml:"url"`
	// Endpoint, Bucket, Prefix and Secure address minio and s3 storage.
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Secure   bool   `yaml:"secure"`
	Region   string `yaml:"region"`
	// PathStyle forces path-style s3 addressing.
	PathStyle bool `yaml:"path_style"`
	// Repository is the OCI repository reference for oci storage.
	Repository string `yaml:"repository"`
	PlainHTTP  bool   `yaml:"plain_http"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Sidecar locates index documents.
type Sidecar struct {
	Kind string `yaml:"kind"`
	// Dir is the root directory for disk sidecars. Defaults to the storage
	// directory for file storage.
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// Suffix is appended to archive keys. Default ".listing".
	Suffix string `yaml:"suffix"`
}

// Log configures the command logger.
type Log struct {
	// Level is debug, info, warn or error. Default info.
	Level string `yaml:"level"`
	// Format is text or json. Default text.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c := Default()
		c.applyEnv()
		return c, c.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes, defaults, and validates a configuration. Unknown fields
// are rejected.
func Parse(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if len(c.Formats) == 0 {
		c.Formats = []string{".zip"}
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 64 << 10
	}
	if c.Compression.Method == "" {
		c.Compression.Method = string(zipfmt.Deflate)
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageFile
	}
	if c.Storage.Kind == StorageFile && c.Storage.Dir == "" {
		c.Storage.Dir = "."
	}
	if c.Sidecar.Kind == "" {
		c.Sidecar.Kind = SidecarDisk
	}
	if c.Sidecar.Kind == SidecarDisk && c.Sidecar.Dir == "" && c.Storage.Kind == StorageFile {
		c.Sidecar.Dir = c.Storage.Dir
	}
	if c.Sidecar.Kind == SidecarMinio && c.Sidecar.Bucket == "" {
		c.Sidecar.Bucket = c.Storage.Bucket
	}
	if c.Sidecar.Suffix == "" {
		c.Sidecar.Suffix = ".listing"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAccessKey); v != "" {
		c.Storage.AccessKey = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		c.Storage.SecretKey = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	for _, f := range c.Formats {
		if !strings.HasPrefix(f, ".") {
			return fmt.Errorf("formats: %q must start with a dot", f)
		}
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("max_entries: must not be negative")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size: must not be negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency: must not be negative")
	}
	if _, err := zipfmt.ParseMethod(c.Compression.Method); err != nil {
		return fmt.Errorf("compression.method: %w", err)
	}

	switch c.Storage.Kind {
	case StorageFile:
	case StorageHTTP:
		if c.Storage.URL == "" {
			return errors.New("storage.url: required for http storage")
		}
	case StorageMinio:
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint: required for minio storage")
		}
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket: required for minio storage")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket: required for s3 storage")
		}
	case StorageOCI:
		if c.Storage.Repository == "" {
			return errors.New("storage.repository: required for oci storage")
		}
	default:
		return fmt.Errorf("storage.kind: unknown kind %q", c.Storage.Kind)
	}

	switch c.Sidecar.Kind {
	case SidecarMemory:
	case SidecarDisk:
		if c.Sidecar.Dir == "" {
			return errors.New("sidecar.dir: required for disk sidecars")
		}
	case SidecarMinio:
		if c.Storage.Kind != StorageMinio {
			return errors.New("sidecar.kind: minio sidecars require minio storage")
		}
		if c.Sidecar.Bucket == "" {
			return errors.New("sidecar.bucket: required for minio sidecars")
		}
	default:
		return fmt.Errorf("sidecar.kind: unknown kind %q", c.Sidecar.Kind)
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Logger returns a logger writing to w as configured.
func (l Log) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

package main

import (
	"context"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/meigma/ziptoc/internal/config"
	"github.com/meigma/ziptoc/sidecar"
	"github.com/meigma/ziptoc/sidecar/disk"
	"github.com/meigma/ziptoc/sidecar/memory"
	miniosidecar "github.com/meigma/ziptoc/sidecar/minio"
	"github.com/meigma/ziptoc/storage"
	"github.com/meigma/ziptoc/storage/file"
	ziphttp "github.com/meigma/ziptoc/storage/http"
	miniostorage "github.com/meigma/ziptoc/storage/minio"
	"github.com/meigma/ziptoc/storage/oci"
	s3storage "github.com/meigma/ziptoc/storage/s3"
)

// openBackends builds the archive backend and listing store described by cfg.
func openBackends(ctx context.Context, cfg *config.Config) (storage.Backend, sidecar.Store, error) {
	sc := cfg.Storage

	var (
		backend storage.Backend
		client  *miniogo.Client
		err     error
	)
	switch sc.Kind {
	case config.StorageFile:
		backend, err = file.New(sc.Dir)
	case config.StorageHTTP:
		backend, err = ziphttp.New(sc.URL)
	case config.StorageMinio:
		client, err = miniostorage.NewClient(sc.Endpoint, sc.AccessKey, sc.SecretKey, sc.Secure)
		if err == nil {
			backend, err = miniostorage.New(client, sc.Bucket, miniostorage.WithPrefix(sc.Prefix))
		}
	case config.StorageS3:
		api, cerr := s3storage.NewClient(ctx, s3storage.ClientOptions{
			Region:      sc.Region,
			Endpoint:    sc.Endpoint,
			AccessKeyID: sc.AccessKey,
			SecretKey:   sc.SecretKey,
			PathStyle:   sc.PathStyle,
		})
		if cerr != nil {
			return nil, nil, cerr
		}
		backend, err = s3storage.New(api, sc.Bucket, s3storage.WithPrefix(sc.Prefix))
	case config.StorageOCI:
		backend, err = oci.New(sc.Repository, ociOptions(sc)...)
	default:
		err = fmt.Errorf("unknown storage kind %q", sc.Kind)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("storage: %w", err)
	}

	store, err := openSidecar(cfg.Sidecar, client)
	if err != nil {
		return nil, nil, fmt.Errorf("sidecar: %w", err)
	}
	return backend, store, nil
}

func openSidecar(c config.Sidecar, client *miniogo.Client) (sidecar.Store, error) {
	switch c.Kind {
	case config.SidecarMemory:
		return memory.New(), nil
	case config.SidecarDisk:
		return disk.New(c.Dir)
	case config.SidecarMinio:
		return miniosidecar.New(client, c.Bucket, miniosidecar.WithPrefix(c.Prefix))
	default:
		return nil, fmt.Errorf("unknown sidecar kind %q", c.Kind)
	}
}

func ociOptions(sc config.Storage) []oci.Option {
	opts := []oci.Option{oci.WithPlainHTTP(sc.PlainHTTP)}
	if sc.Username == "" && sc.Password == "" {
		return append(opts, oci.WithDockerConfig())
	}
	registry, _, _ := strings.Cut(sc.Repository, "/")
	if sc.Username == "" {
		return append(opts, oci.WithStaticToken(registry, sc.Password))
	}
	return append(opts, oci.WithStaticCredentials(registry, sc.Username, sc.Password))
}

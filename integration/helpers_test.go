//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	miniostorage "github.com/meigma/ziptoc/storage/minio"
)

const (
	minioUser     = "ziptoc"
	minioPassword = "ziptoc-secret"
)

// --- Container Setup ---

var (
	minioOnce     sync.Once
	minioEndpoint string
	minioErr      error

	registryOnce sync.Once
	registryAddr string
	registryErr  error
)

func skipWithoutDocker(tb testing.TB) {
	tb.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
}

// getMinio returns the shared MinIO endpoint, starting the container if needed.
func getMinio(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	minioOnce.Do(func() {
		minioEndpoint, minioErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		}, "9000/tcp")
	})
	if minioErr != nil {
		tb.Fatalf("start minio container: %v", minioErr)
	}
	return minioEndpoint
}

// getRegistry returns the shared registry address, starting the container if needed.
func getRegistry(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	registryOnce.Do(func() {
		registryAddr, registryErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "registry:2",
			ExposedPorts: []string{"5000/tcp"},
			WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "5000/tcp")
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

// startContainer starts req and returns the host:port address of port.
// Containers are removed by the testcontainers reaper.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start %s: %w", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %s host: %w", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("resolve %s port: %w", req.Image, err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// newBucket creates a uniquely named bucket and returns a client for it.
func newBucket(tb testing.TB, name string) *miniogo.Client {
	tb.Helper()
	client, err := miniostorage.NewClient(getMinio(tb), minioUser, minioPassword, false)
	require.NoError(tb, err)
	require.NoError(tb, client.MakeBucket(context.Background(), name, miniogo.MakeBucketOptions{}))
	return client
}

// --- Test Data Helpers ---

type entry struct {
	name    string
	content []byte
}

// buildZip writes entries, in order, into a new archive.
func buildZip(tb testing.TB, entries ...entry) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(tb, err)
		_, err = w.Write(e.content)
		require.NoError(tb, err)
	}
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// makeCompressibleContent creates content that benefits from compression.
func makeCompressibleContent(size int) []byte {
	pattern := []byte("This is a repeating pattern for compression testing. ")
	result := make([]byte, 0, size)
	for len(result) < size {
		result = append(result, pattern...)
	}
	return result[:size]
}

func readZip(tb testing.TB, data []byte) map[string][]byte {
	tb.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(tb, err)
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(tb, err)
		var b bytes.Buffer
		_, err = b.ReadFrom(rc)
		require.NoError(tb, err)
		require.NoError(tb, rc.Close())
		out[f.Name] = b.Bytes()
	}
	return out
}

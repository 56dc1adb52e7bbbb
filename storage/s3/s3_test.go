package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ziptoc/storage"
)

// fakeAPI serves objects from memory and records requested ranges.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	ranges  []string
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(`"etag"`),
	}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.mu.Lock()
	f.ranges = append(f.ranges, aws.ToString(in.Range))
	f.mu.Unlock()

	var start, end int
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data[start : end+1])),
	}, nil
}

func TestObject_OpenAndRead(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{objects: map[string][]byte{"archives/a.zip": []byte("0123456789")}}
	backend, err := New(api, "bucket", WithPrefix("archives"))
	require.NoError(t, err)

	stream, err := backend.Object("a.zip").Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	size, err := storage.Size(stream)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	_, err = stream.Seek(4, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))

	ra, ok := stream.(io.ReaderAt)
	require.True(t, ok)
	tail := make([]byte, 5)
	n, err := ra.ReadAt(tail, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "89", string(tail[:n]))

	assert.Contains(t, api.ranges, "bytes=4-6")
	assert.Contains(t, api.ranges, "bytes=8-9")
}

func TestObject_OpenMissing(t *testing.T) {
	t.Parallel()

	backend, err := New(&fakeAPI{objects: map[string][]byte{}}, "bucket")
	require.NoError(t, err)

	_, err = backend.Object("nope.zip").Open(context.Background())
	require.ErrorIs(t, err, storage.ErrNotExist)
	assert.True(t, strings.Contains(err.Error(), "s3://bucket/nope.zip"))
}

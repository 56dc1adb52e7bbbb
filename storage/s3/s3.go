// Package s3 provides a storage backend over Amazon S3 using ranged
// GetObject requests.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/meigma/ziptoc/storage"
)

// API is the subset of the S3 client used by the backend.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	// Region is the AWS region. Empty uses the default resolution chain.
	Region string
	// Endpoint overrides the service endpoint (for S3-compatible stores).
	Endpoint string
	// AccessKeyID and SecretKey, when set, override all other credential sources.
	AccessKeyID string
	SecretKey   string
	// PathStyle forces path-style addressing.
	PathStyle bool
}

// NewClient builds an S3 client from the default AWS configuration chain.
func NewClient(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 storage: load config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	}), nil
}

// Backend resolves keys to objects in one bucket.
type Backend struct {
	api    API
	bucket string
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix places all keys under prefix inside the bucket.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend reading from bucket through api.
func New(api API, bucket string, opts ...Option) (*Backend, error) {
	if api == nil {
		return nil, errors.New("s3 storage: client is nil")
	}
	if bucket == "" {
		return nil, errors.New("s3 storage: bucket is empty")
	}
	b := &Backend{api: api, bucket: bucket}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Object returns the object stored at key.
func (b *Backend) Object(key string) storage.Object {
	name := key
	if b.prefix != "" {
		name = path.Join(b.prefix, key)
	}
	return &Object{api: b.api, bucket: b.bucket, key: key, name: name}
}

// Object is an archive stored in S3.
type Object struct {
	api    API
	bucket string
	key    string
	name   string
}

// Key returns the object key.
func (o *Object) Key() string {
	return o.key
}

// Open heads the object to learn its size and ETag and returns a stream
// whose reads are ranged GetObject calls pinned to that ETag.
func (o *Object) Open(ctx context.Context) (storage.Stream, error) {
	head, err := o.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.name),
	})
	if err != nil {
		return nil, o.mapError(err)
	}
	src := &source{
		ctx:    ctx,
		api:    o.api,
		bucket: o.bucket,
		name:   o.name,
		size:   aws.ToInt64(head.ContentLength),
		etag:   aws.ToString(head.ETag),
	}
	return storage.NewSectionStream(src, src.size, nil), nil
}

func (o *Object) mapError(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: s3://%s/%s", storage.ErrNotExist, o.bucket, o.name)
	}
	return fmt.Errorf("s3 storage: s3://%s/%s: %w", o.bucket, o.name, err)
}

// source implements io.ReaderAt with ranged GetObject requests.
type source struct {
	ctx    context.Context
	api    API
	bucket string
	name   string
	size   int64
	etag   string
}

func (s *source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	expected := len(p)
	if end >= s.size {
		end = s.size - 1
		expected = int(end - off + 1)
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.name),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	}
	if s.etag != "" {
		in.IfMatch = aws.String(s.etag)
	}
	out, err := s.api.GetObject(s.ctx, in)
	if err != nil {
		return 0, fmt.Errorf("s3 storage: get s3://%s/%s: %w", s.bucket, s.name, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:expected])
	if err != nil {
		return n, err
	}
	if expected < len(p) {
		return n, io.EOF
	}
	return n, nil
}

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/openroads/road-extractor/pkg/georef"
)

const (
	defaultRegion     = "us-east-1"
	defaultPresignTTL = time.Hour
	maskContentType   = "application/octet-stream"
)

var ErrNotFound = errors.New("artifact not found")

// Store keeps the artifacts workers hand to each other.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) ([]byte, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (*url.URL, error)
}

// MaskKey is where the primary stage stores the mask of bbox.
func MaskKey(bbox georef.BBox) string {
	return "masks/" + bbox.Key() + ".npy"
}

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	region          string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL: false,
		region: defaultRegion,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type MinioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

var _ Store = (*MinioStore)(nil)

func NewMinioStore(opts ...MinioOpts) (*MinioStore, error) {
	cfg := newConfig(opts...)
	if cfg.bucket == "" {
		return nil, errors.New("minio bucket is required")
	}

	// Setting the region keeps presigning local, without a bucket location lookup.
	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, err
	}

	return &MinioStore{cfg: cfg, client: minioClient}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: maskContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	objInfo, err := object.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) != objInfo.Size {
		return nil, fmt.Errorf("failed to download the entire artifact. expected bytes %d received %d", objInfo.Size, len(data))
	}

	return data, nil
}

// PresignGet returns a URL that grants read access to key for ttl.
func (s *MinioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	u, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, key, ttl, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("failed to presign %q: %w", key, err)
	}
	return u, nil
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		if region != "" {
			c.region = region
		}
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

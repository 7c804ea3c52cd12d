// Package objstore uploads export archives to a MinIO or S3 bucket.
package objstore

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"pipeline-monitor/internal/config"
	"pipeline-monitor/internal/slogx"
)

const zipContentType = "application/zip"

type Client struct {
	mc       *minio.Client
	bucket   string
	prefix   string
	endpoint string
	secure   bool
	logger   *slog.Logger
}

type Option func(*options)

type options struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New builds a client from S3 settings. The endpoint may be a bare
// host:port or a URL; a URL scheme overrides UseSSL.
func New(cfg config.S3, opts ...Option) (*Client, error) {
	o := options{logger: slogx.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slogx.Discard()
	}

	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    secure,
		Region:    cfg.Region,
		Transport: o.transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create s3 client")
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "pipeline-exports"
	}
	return &Client{
		mc:       mc,
		bucket:   bucket,
		prefix:   strings.TrimLeft(cfg.Prefix, "/"),
		endpoint: endpoint,
		secure:   secure,
		logger:   o.logger,
	}, nil
}

func splitEndpoint(raw string, useSSL bool) (string, bool) {
	v := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(strings.ToLower(v), "https://"):
		return strings.TrimRight(v[len("https://"):], "/"), true
	case strings.HasPrefix(strings.ToLower(v), "http://"):
		return strings.TrimRight(v[len("http://"):], "/"), false
	default:
		return strings.TrimRight(v, "/"), useSSL
	}
}

func (c *Client) Bucket() string { return c.bucket }

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", c.bucket)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrapf(err, "create bucket %s", c.bucket)
	}
	c.logger.InfoContext(ctx, "created bucket", slog.String("bucket", c.bucket))
	return nil
}

// Key is the object key an archive called name is stored under.
func (c *Client) Key(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if c.prefix == "" {
		return base
	}
	return strings.TrimRight(c.prefix, "/") + "/" + base
}

func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s", key)
	}
	return nil
}

// Put stores a finished archive and returns its s3:// location. It makes
// Client usable as an export sink.
func (c *Client) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := c.EnsureBucket(ctx); err != nil {
		return "", err
	}
	key := c.Key(name)
	if err := c.Upload(ctx, key, data, zipContentType); err != nil {
		return "", err
	}
	c.logger.DebugContext(ctx, "uploaded archive", slog.String("bucket", c.bucket), slog.String("key", key), slog.Int("bytes", len(data)))
	return "s3://" + c.bucket + "/" + key, nil
}

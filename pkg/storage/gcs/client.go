package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcsapi "google.golang.org/api/storage/v1"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/gcp"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/storage"
)

const pingTimeout = 5 * time.Second

// Client stores proofs and course assets in Google Cloud Storage.
type Client struct {
	svc         *gcsapi.Service
	pingBuckets []string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds the storage service from explicit credentials or ADC and checks
// that the configured buckets are reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcpCfg config.GCPConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	if cfg.ProofBucket == "" {
		return nil, errors.New("gcs proof bucket is required")
	}

	opts := gcp.ClientOptions(gcpCfg, append([]option.ClientOption{option.WithScopes(gcsapi.DevstorageReadWriteScope)}, extra...)...)

	svc, err := gcsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs service: %w", err)
	}

	buckets := []string{cfg.ProofBucket}
	if cfg.AssetBucket != "" && cfg.AssetBucket != cfg.ProofBucket {
		buckets = append(buckets, cfg.AssetBucket)
	}
	client := &Client{svc: svc, pingBuckets: buckets}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func (c *Client) Put(ctx context.Context, bucket, key, contentType string, body io.Reader) (storage.ObjectInfo, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	obj, err := c.svc.Objects.Insert(bucket, &gcsapi.Object{Name: clean, ContentType: contentType}).
		Media(body, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s/%s: %w", bucket, clean, err)
	}
	return toInfo(bucket, obj), nil
}

func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	info, err := c.Stat(ctx, bucket, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	resp, err := c.svc.Objects.Get(bucket, info.Key).Context(ctx).Download()
	if err != nil {
		return nil, storage.ObjectInfo{}, mapErr(err)
	}
	return resp.Body, info, nil
}

func (c *Client) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	obj, err := c.svc.Objects.Get(bucket, clean).Context(ctx).Do()
	if err != nil {
		return storage.ObjectInfo{}, mapErr(err)
	}
	return toInfo(bucket, obj), nil
}

func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return err
	}
	return mapErr(c.svc.Objects.Delete(bucket, clean).Context(ctx).Do())
}

// Ping checks every configured bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	for _, bucket := range c.pingBuckets {
		if _, err := c.svc.Buckets.Get(bucket).Context(ctx).Do(); err != nil {
			return fmt.Errorf("bucket %s: %w", bucket, mapErr(err))
		}
	}
	return nil
}

func (c *Client) Close() error {
	return nil
}

func toInfo(bucket string, obj *gcsapi.Object) storage.ObjectInfo {
	if obj == nil {
		return storage.ObjectInfo{Bucket: bucket}
	}
	return storage.ObjectInfo{Bucket: bucket, Key: obj.Name, ContentType: obj.ContentType, Size: int64(obj.Size)}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return storage.ErrNotFound
	}
	return err
}

package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const pingTimeout = 5 * time.Second

// Client reads payment and transfer proof attachments from a bucket.
type Client struct {
	svc    *storage.Service
	bucket string
	signer *signer
}

// NewClient builds a read-only storage client and checks the bucket is
// reachable. Service account credentials also enable signed read URLs.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	creds, err := credentialsJSON(gcp)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithScopes(storage.DevstorageReadOnlyScope)}
	var s *signer
	if creds != nil {
		opts = append(opts, option.WithCredentialsJSON(creds))
		if s, err = newSigner(creds); err != nil {
			return nil, err
		}
	}

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}
	client := &Client{svc: svc, bucket: bucket, signer: s}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"bucket": bucket, "signed_urls": s != nil})
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error {
	return nil
}

// Ping reads the bucket metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.svc.Buckets.Get(c.bucket).Fields("name").Context(ctx).Do(); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", c.bucket, err)
	}
	return nil
}

// ObjectExists reports whether object is present. A 404 is not an error.
func (c *Client) ObjectExists(ctx context.Context, bucket, object string) (bool, error) {
	if c == nil || c.svc == nil {
		return false, errors.New("gcs client not initialized")
	}
	bucket, object, err := c.locate(bucket, object)
	if err != nil {
		return false, err
	}

	_, err = c.svc.Objects.Get(bucket, object).Fields("name").Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("gcs get %s/%s: %w", bucket, object, err)
}

// SignedReadURL returns a time-limited GET URL for the object. Without a
// service account key it falls back to the authenticated browser URL, which
// only works for callers with bucket access.
func (c *Client) SignedReadURL(bucket, object string, ttl time.Duration) (string, error) {
	if c == nil {
		return "", errors.New("gcs client not initialized")
	}
	bucket, object, err := c.locate(bucket, object)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	if c.signer == nil {
		u := url.URL{Scheme: "https", Host: "storage.cloud.google.com", Path: "/" + bucket + "/" + object}
		return u.String(), nil
	}
	return c.signer.readURL(bucket, object, ttl)
}

func (c *Client) locate(bucket, object string) (string, string, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	if bucket == "" {
		return "", "", errors.New("bucket is required")
	}
	object = strings.TrimPrefix(object, "/")
	if object == "" {
		return "", "", errors.New("object is required")
	}
	return bucket, object, nil
}

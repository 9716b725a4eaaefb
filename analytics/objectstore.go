package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	finalize "github.com/goliatone/go-finalize"
)

// ObjectStoreConfig locates the bucket analytics records are written to.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

func (c ObjectStoreConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("object store endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("object store endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("object store access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("object store secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("object store bucket is required")
	}
	return nil
}

// NewMinIOClient builds a client for cfg.
func NewMinIOClient(cfg ObjectStoreConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// EnsureBucket creates the bucket when it does not exist.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ObjectPutter is the subset of *minio.Client used by ObjectStoreTransport.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var _ ObjectPutter = (*minio.Client)(nil)

// ObjectStoreTransport stores each analytics call as one JSON object, keyed
// <prefix>/<type>/<yyyy>/<mm>/<dd>/<uuid>.json.
type ObjectStoreTransport struct {
	client     ObjectPutter
	bucket     string
	prefix     string
	putTimeout time.Duration
	now        func() time.Time
}

var _ finalize.AnalyticsTransport = (*ObjectStoreTransport)(nil)

func NewObjectStoreTransport(client ObjectPutter, bucket, prefix string) (*ObjectStoreTransport, error) {
	if client == nil {
		return nil, errors.New("object store client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("object store bucket is required")
	}
	return &ObjectStoreTransport{
		client:     client,
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
		putTimeout: 15 * time.Second,
		now:        time.Now,
	}, nil
}

func (t *ObjectStoreTransport) Identify(ctx context.Context, user *finalize.User, identity string) error {
	return t.put(ctx, identifyRecord(user, identity, t.now()))
}

func (t *ObjectStoreTransport) Track(ctx context.Context, event finalize.TrackEvent) error {
	return t.put(ctx, trackRecord(event))
}

func (t *ObjectStoreTransport) objectKey(recordType string, at time.Time) string {
	at = at.UTC()
	return path.Join(t.prefix, recordType, at.Format("2006/01/02"), uuid.NewString()+".json")
}

func (t *ObjectStoreTransport) put(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := t.objectKey(rec.Type, t.now())

	putCtx, cancel := context.WithTimeout(ctx, t.putTimeout)
	defer cancel()
	_, err = t.client.PutObject(
		putCtx,
		t.bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCSStore writes archived media to a Google Cloud Storage bucket. Objects
// are served from publicBaseURL/bucket/key, so the bucket must allow public
// reads or sit behind a CDN.
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
}

// NewGCSStore constructs a store backed by the provided Cloud Storage client.
func NewGCSStore(client *gcs.Client, bucket, publicBaseURL string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage: gcs client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return &GCSStore{client: client, bucket: bucket, publicBaseURL: base}, nil
}

func (s *GCSStore) Upload(ctx context.Context, data []byte, opts UploadOptions) (Object, error) {
	key, err := ObjectKey(opts)
	if err != nil {
		return Object{}, err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	w.CacheControl = "public, max-age=31536000"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("storage: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: finalize object: %w", err)
	}
	return Object{URL: s.publicURL(key), ID: key}, nil
}

func (s *GCSStore) Delete(ctx context.Context, id string) error {
	key, err := sanitizeKey(id)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

func (s *GCSStore) publicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/")
}

var _ Store = (*GCSStore)(nil)

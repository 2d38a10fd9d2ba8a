// Package storage uploads generated and user-supplied audio to Google Cloud Storage.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"answering-machine/internal/apperr"
	"answering-machine/internal/observability"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// bucket is the part of a GCS bucket the store needs.
type bucket interface {
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
	SignedURL(object string, opts *gcs.SignedURLOptions) (string, error)
}

type gcsBucket struct {
	h *gcs.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := b.h.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b gcsBucket) SignedURL(object string, opts *gcs.SignedURLOptions) (string, error) {
	return b.h.SignedURL(object, opts)
}

type Config struct {
	Bucket string

	// CredentialsJSON is a service account key. Empty uses application default credentials,
	// which must be able to sign (e.g. via IAM SignBlob) for SignedURL to work.
	CredentialsJSON string
	SignedURLTTL    time.Duration
}

// UploadResult names a stored object and a time-limited URL to fetch it.
type UploadResult struct {
	ObjectName string    `json:"file_name"`
	SignedURL  string    `json:"signed_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type GCSStore struct {
	client *gcs.Client
	bucket bucket
	name   string
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: GCS_STORAGE_BUCKET: %w", apperr.ErrNotConfigured)
	}
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: new gcs client: %w", err)
	}
	s := newStore(gcsBucket{h: client.Bucket(cfg.Bucket)}, cfg)
	s.client = client
	return s, nil
}

func newStore(b bucket, cfg Config) *GCSStore {
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &GCSStore{
		bucket: b,
		name:   cfg.Bucket,
		ttl:    ttl,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Upload writes r to a new object named <uuid><ext> and returns a V4 signed GET URL for it.
func (s *GCSStore) Upload(ctx context.Context, r io.Reader, contentType, ext string) (UploadResult, error) {
	if r == nil {
		return UploadResult{}, fmt.Errorf("storage: empty upload: %w", apperr.ErrInvalidArgument)
	}
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		return UploadResult{}, fmt.Errorf("storage: empty upload: %w", apperr.ErrInvalidArgument)
	}
	object := s.newID() + cleanExt(ext)

	start := time.Now()
	w := s.bucket.NewWriter(ctx, object, contentType)
	if _, err := io.Copy(w, br); err != nil {
		_ = w.Close()
		return UploadResult{}, s.finish("upload", start, fmt.Errorf("copy %s: %w", object, err))
	}
	if err := w.Close(); err != nil {
		return UploadResult{}, s.finish("upload", start, fmt.Errorf("close %s: %w", object, err))
	}
	s.finish("upload", start, nil)

	url, expires, err := s.SignedURL(object)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{ObjectName: object, SignedURL: url, ExpiresAt: expires}, nil
}

// SignedURL returns a V4 signed GET URL for object, valid for the configured TTL.
func (s *GCSStore) SignedURL(object string) (string, time.Time, error) {
	expires := s.now().Add(s.ttl)
	start := time.Now()
	url, err := s.bucket.SignedURL(object, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: expires,
	})
	if err != nil {
		return "", time.Time{}, s.finish("sign_url", start, fmt.Errorf("sign %s: %w", object, err))
	}
	s.finish("sign_url", start, nil)
	return url, expires, nil
}

func (s *GCSStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *GCSStore) finish(op string, start time.Time, err error) error {
	if err == nil {
		observability.ObserveProvider("gcs", op, start, "")
		return nil
	}
	err = fmt.Errorf("storage: %v: %w", err, apperr.ErrProviderUnavailable)
	observability.ObserveProvider("gcs", op, start, apperr.Kind(err))
	return err
}

// cleanExt keeps a short alphanumeric extension and drops anything else.
func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	if ext == "." {
		return ""
	}
	return ext
}

// ExtFromFilename returns the extension of a client-supplied file name.
func ExtFromFilename(name string) string {
	return cleanExt(path.Ext(strings.ReplaceAll(name, "\\", "/")))
}

package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/merchforge/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	name    string
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend. name is
// used as the scheme of object references.
func NewStorage(name string, backend ObjectStorage) *Storage {
	return &Storage{name: name, backend: backend}
}

// New connects to the backend selected by cfg and makes sure its bucket
// exists. It returns nil without error when no backend is configured.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case config.BackendS3:
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Backend, err)
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure %s bucket: %w", cfg.Backend, err)
	}
	return NewStorage(cfg.Backend, backend), nil
}

// Name returns the backend name used in object references.
func (s *Storage) Name() string {
	return s.name
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Reference formats the location of key as <backend>://<bucket>/<key>.
func (s *Storage) Reference(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.name, s.backend.Bucket(), key)
}

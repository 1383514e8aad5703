package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// MaxDesignSize bounds the decoded size of an uploaded design image.
const MaxDesignSize = 10 << 20

const designPrefix = "designs/"

var (
	// ErrObjectNotFound is returned when a referenced object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidDesign is returned for data URLs that cannot be stored.
	ErrInvalidDesign = errors.New("invalid design image")
)

var designExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/webp":    "webp",
	"image/gif":     "gif",
	"image/svg+xml": "svg",
}

// IsDataURL reports whether s is an inline data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURL parses a base64 data:image URL into its content type and bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URL", ErrInvalidDesign)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrInvalidDesign)
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: payload must be base64", ErrInvalidDesign)
	}
	if _, known := designExtensions[contentType]; !known {
		return "", nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidDesign, contentType)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxDesignSize+3 {
		return "", nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidDesign, MaxDesignSize)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
	}
	if len(data) > MaxDesignSize {
		return "", nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidDesign, MaxDesignSize)
	}
	return contentType, data, nil
}

// DesignStore keeps order design images in object storage.
type DesignStore struct {
	storage *Storage
	newID   func() string
}

func NewDesignStore(s *Storage) *DesignStore {
	return &DesignStore{
		storage: s,
		newID:   func() string { return uuid.NewString() },
	}
}

// Save uploads a data URL design for orderNumber and returns its reference.
// Values that are not data URLs are returned unchanged.
func (d *DesignStore) Save(ctx context.Context, orderNumber, design string) (string, error) {
	if !IsDataURL(design) {
		return design, nil
	}
	contentType, data, err := DecodeDataURL(design)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s%s-%s.%s", designPrefix, orderNumber, d.newID(), designExtensions[contentType])
	if err := d.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("upload design: %w", err)
	}
	return d.storage.Reference(key), nil
}

// Remove deletes the object behind ref when it belongs to this store.
func (d *DesignStore) Remove(ctx context.Context, ref string) error {
	key, ok := d.keyOf(ref)
	if !ok {
		return nil
	}
	return d.storage.Delete(ctx, key)
}

// Open streams the object behind ref. References to other locations yield
// ErrObjectNotFound.
func (d *DesignStore) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	key, ok := d.keyOf(ref)
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	r, err := d.storage.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return r, contentTypeOf(key), nil
}

// Owns reports whether ref points into this store.
func (d *DesignStore) Owns(ref string) bool {
	_, ok := d.keyOf(ref)
	return ok
}

func (d *DesignStore) keyOf(ref string) (string, bool) {
	prefix := d.storage.Reference("")
	key, ok := strings.CutPrefix(ref, prefix)
	if !ok || !strings.HasPrefix(key, designPrefix) {
		return "", false
	}
	return key, true
}

func contentTypeOf(key string) string {
	for contentType, ext := range designExtensions {
		if strings.HasSuffix(key, "."+ext) {
			return contentType
		}
	}
	return "application/octet-stream"
}

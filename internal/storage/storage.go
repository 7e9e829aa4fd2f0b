// Package storage keeps uploaded files (lead biodata, profile pictures)
// on the local filesystem or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"knot-backend/internal/config"
)

const (
	KindBiodata = "biodata"
	KindPicture = "pictures"
)

var ErrNotFound = errors.New("file not found")

// Driver is implemented by every blob backend. Keys are slash separated
// and relative to the driver root.
type Driver interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// NewKey builds "<kind>/<owner>/<uuid><ext>" keeping only the original
// file extension.
func NewKey(kind, owner, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(kind, owner, uuid.New().String()+ext)
}

// New picks the driver named in cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Driver, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalPath, cfg.PublicURL), nil
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Allowed content types per upload kind.
var (
	BiodataTypes = map[string]string{
		".pdf":  "application/pdf",
		".doc":  "application/msword",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
	}
	PictureTypes = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".gif":  "image/gif",
	}
)

// ContentType resolves the content type for filename from allowed,
// reporting false when the extension is not accepted.
func ContentType(allowed map[string]string, filename string) (string, bool) {
	ct, ok := allowed[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

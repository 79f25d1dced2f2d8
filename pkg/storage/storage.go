package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Object describes a stored file.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Store persists uploaded objects and resolves their public URLs.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
	Ping(ctx context.Context) error
}

// New builds the driver selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.StorageDriverLocal:
		store, err := NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "dir", cfg.LocalDir), "local object storage ready")
		}
		return store, nil
	case config.StorageDriverS3:
		return NewS3Store(ctx, cfg, logg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// ObjectKey builds a collision-free key: <prefix>/<yyyy>/<mm>/<uuid><ext>.
func ObjectKey(prefix, ext string, now time.Time) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return path.Join(prefix, now.UTC().Format("2006"), now.UTC().Format("01"), uuid.NewString()+ext)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// PutImage sniffs body, rejects non-images and stores the object under a
// fresh key beneath prefix.
func PutImage(ctx context.Context, store Store, prefix string, body io.Reader, size int64, now time.Time) (*Object, error) {
	detected, err := SniffImage(body)
	if err != nil {
		return nil, err
	}
	key := ObjectKey(prefix, detected.Extension, now)
	obj, err := store.Put(ctx, key, detected.Body, size, detected.ContentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store image")
	}
	return obj, nil
}

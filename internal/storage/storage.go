// Package storage keeps uploaded chat images.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/config"
)

var (
	// ErrUploadDisabled is returned by every operation when no image backend
	// is configured.
	ErrUploadDisabled   = errors.New("image upload is disabled")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// ImageStore saves an image and returns the URL clients should load it from.
type ImageStore interface {
	Save(ctx context.Context, data []byte, contentType, ext string) (string, error)
	Delete(ctx context.Context, url string) error
	Enabled() bool
}

var allowedImages = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DetectImage sniffs data and returns its content type and file extension.
// The client-declared type is never trusted.
func DetectImage(data []byte) (contentType, ext string, err error) {
	mt := mimetype.Detect(data)
	if !allowedImages[mt.String()] {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
	}
	return mt.String(), mt.Extension(), nil
}

// New builds the backend selected by IMAGE_STORAGE.
func New(cfg *config.Config, log zerolog.Logger) (ImageStore, error) {
	switch cfg.Upload.Storage {
	case config.ImageStorageLocal:
		return NewLocalStorage(cfg.Upload.Dir, cfg.Upload.URLPrefix, log)
	case config.ImageStorageSupabase:
		if cfg.Supabase.URL == "" || cfg.Supabase.ServiceRoleKey == "" {
			log.Warn().Msg("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set; image upload disabled")
			return Disabled{}, nil
		}
		return NewSupabaseStorage(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Supabase.Bucket), nil
	default:
		return Disabled{}, nil
	}
}

// Disabled rejects every upload with ErrUploadDisabled.
type Disabled struct{}

func (Disabled) Save(context.Context, []byte, string, string) (string, error) {
	return "", ErrUploadDisabled
}

func (Disabled) Delete(context.Context, string) error { return ErrUploadDisabled }

func (Disabled) Enabled() bool { return false }

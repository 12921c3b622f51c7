package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LocalStorage writes images under a directory that the HTTP server serves
// statically at urlPrefix.
type LocalStorage struct {
	dir       string
	urlPrefix string
	disabled  bool
	log       zerolog.Logger
}

func NewLocalStorage(dir, urlPrefix string, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	dir = strings.TrimSpace(dir)
	if dir == "" {
		logger.Warn().Msg("UPLOAD_DIR is not set; image upload disabled")
		return &LocalStorage{log: logger, disabled: true}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	s := &LocalStorage{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		log:       logger,
	}
	logger.Info().Str("dir", dir).Str("url_prefix", s.urlPrefix).Msg("local image storage initialized")
	return s, nil
}

func (l *LocalStorage) Dir() string { return l.dir }

func (l *LocalStorage) URLPrefix() string { return l.urlPrefix }

func (l *LocalStorage) Enabled() bool { return !l.disabled }

func (l *LocalStorage) Save(ctx context.Context, data []byte, contentType, ext string) (string, error) {
	if l.disabled {
		return "", ErrUploadDisabled
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	l.log.Debug().Str("file", name).Int("bytes", len(data)).Str("content_type", contentType).Msg("image stored")
	return path.Join(l.urlPrefix, name), nil
}

// Delete removes a file previously returned by Save. Unknown URLs are ignored.
func (l *LocalStorage) Delete(ctx context.Context, url string) error {
	if l.disabled {
		return ErrUploadDisabled
	}
	name := path.Base(url)
	if !strings.HasPrefix(url, l.urlPrefix+"/") || name == "." || name == "/" {
		return nil
	}
	if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SupabaseStorage stores images in a public Supabase Storage bucket.
type SupabaseStorage struct {
	URL            string
	ServiceRoleKey string
	BucketName     string
	client         *http.Client
}

func NewSupabaseStorage(url, serviceRoleKey, bucketName string) *SupabaseStorage {
	return &SupabaseStorage{
		URL:            strings.TrimSuffix(url, "/"),
		ServiceRoleKey: serviceRoleKey,
		BucketName:     bucketName,
		client:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SupabaseStorage) Enabled() bool { return true }

func (s *SupabaseStorage) objectURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.URL, s.BucketName, name)
}

func (s *SupabaseStorage) publicURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.URL, s.BucketName, name)
}

// Save uploads the image and returns its public URL.
func (s *SupabaseStorage) Save(ctx context.Context, data []byte, contentType, ext string) (string, error) {
	name := uuid.NewString() + ext

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(name), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceRoleKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}
	return s.publicURL(name), nil
}

// Delete removes an object previously returned by Save.
func (s *SupabaseStorage) Delete(ctx context.Context, url string) error {
	prefix := s.publicURL("")
	if !strings.HasPrefix(url, prefix) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(strings.TrimPrefix(url, prefix)), nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceRoleKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

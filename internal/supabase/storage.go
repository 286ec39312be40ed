package supabase

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	storage "github.com/supabase-community/storage-go"

	"facetalk-backend/internal/models"
)

// StorageClient copies finished generation outputs into a Supabase Storage
// bucket, since vendor output URLs expire.
type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) (*StorageClient, error) {
	baseURL := strings.TrimRight(supabaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

// ObjectPath is owners/{owner}/{kind}/{taskID}{ext}.
func ObjectPath(owner string, kind models.GenerationKind, taskID, ext string) string {
	return fmt.Sprintf("owners/%s/%s/%s%s", owner, kind, taskID, ext)
}

// Archive uploads data and returns its public URL. The content type is
// sniffed when the caller does not know it.
func (s *StorageClient) Archive(owner string, kind models.GenerationKind, taskID string, data []byte, contentType string) (string, error) {
	detected := mimetype.Detect(data)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}
	storagePath := ObjectPath(owner, kind, taskID, detected.Extension())

	upsert := true
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.baseURL, s.bucket, storagePath)
}

// DeleteArchived removes an object previously returned by Archive. URLs
// outside this bucket are ignored.
func (s *StorageClient) DeleteArchived(publicURL string) error {
	storagePath, ok := strings.CutPrefix(publicURL, s.GetPublicURL(""))
	if !ok || storagePath == "" {
		return nil
	}
	return s.DeleteFile(storagePath)
}

func (s *StorageClient) DeleteFile(storagePath string) error {
	_, err := s.client.RemoveFile(s.bucket, []string{storagePath})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

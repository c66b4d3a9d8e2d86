package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"campfire/pkg/domain"
)

// MaxImageBytes caps message image uploads.
const MaxImageBytes = 5 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore persists message image attachments.
type ImageStore interface {
	Put(ctx context.Context, memberID, imageID string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// MinioImageStore implements ImageStore for MinIO/S3 compatible storage.
type MinioImageStore struct {
	client *minio.Client
	bucket string
}

// NewMinioImageStore connects to MinIO and ensures the bucket exists.
func NewMinioImageStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioImageStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioImageStore{client: client, bucket: bucket}, nil
}

// Put validates and uploads one image, returning the object key.
// The content type is sniffed from the payload, never trusted from the
// client, and only common web image formats are accepted.
func (m *MinioImageStore) Put(ctx context.Context, memberID, imageID string, r io.Reader, size int64) (string, error) {
	if size <= 0 || size > MaxImageBytes {
		return "", domain.E(domain.KindInvalidInput, "image must be between 1 byte and 5MB")
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read image header: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", domain.E(domain.KindInvalidInput, "unsupported image type")
	}

	key := path.Join("images", memberID, imageID+ext)
	body := io.MultiReader(bytes.NewReader(head), r)
	_, err = m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// Delete removes an object.
func (m *MinioImageStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PresignGet generates a pre-signed GET URL for an uploaded image.
func (m *MinioImageStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}

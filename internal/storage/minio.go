package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when an attachment row points at a key the
// bucket no longer holds.
var ErrObjectNotFound = errors.New("attachment object not found")

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinioStore keeps attachment content. Rows in Postgres only carry the key.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client for %s: %w", opts.Endpoint, err)
	}

	if err := ensureBucket(ctx, client, opts.Bucket); err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		// Another binary may have created it first.
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// AttachmentObjectKey is the layout the event handler parses back:
// <work order id>/<attachment id>/<filename>.
func AttachmentObjectKey(workOrderID, attachmentID, filename string) string {
	return path.Join(workOrderID, attachmentID, filename)
}

func (m *MinioStore) PutAttachment(ctx context.Context, workOrderID, attachmentID, filename string, content []byte) (string, error) {
	objectKey := AttachmentObjectKey(workOrderID, attachmentID, filename)
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType:  contentTypeFor(filename),
		UserMetadata: attachmentMetadata(workOrderID, attachmentID),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", objectKey, err)
	}
	return objectKey, nil
}

func (m *MinioStore) GetAttachment(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectError(objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapObjectError(objectKey, err)
	}
	return data, nil
}

// GetObject is lazy, so a missing key only surfaces on the first read.
func mapObjectError(objectKey string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objectKey)
	}
	return fmt.Errorf("read %s: %w", objectKey, err)
}

func attachmentMetadata(workOrderID, attachmentID string) map[string]string {
	return map[string]string{
		"work-order-id": workOrderID,
		"attachment-id": attachmentID,
	}
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

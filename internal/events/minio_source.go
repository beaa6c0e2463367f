package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"

	applog "pcb-mes/internal/log"
	"pcb-mes/internal/metrics"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

type UploadEvent struct {
	WorkOrderID  string
	AttachmentID string
	Filename     string
	ObjectKey    string
	EventName    string
}

type UploadEventSource interface {
	Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error
}

// bucketListener is the part of *minio.Client the source needs.
type bucketListener interface {
	ListenBucketNotification(ctx context.Context, bucketName, prefix, suffix string, events []string) <-chan notification.Info
}

type MinioUploadEventSource struct {
	client bucketListener
	bucket string
	prefix string
	suffix string
}

func NewMinioUploadEventSource(client bucketListener, bucket string, prefix string, suffix string) *MinioUploadEventSource {
	return &MinioUploadEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		suffix: suffix,
	}
}

// Run dispatches every object-created record to handler until ctx is done.
// Keys that do not follow the attachment layout are logged and skipped; a
// handler error ends the run.
func (s *MinioUploadEventSource) Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error {
	logger := applog.WithComponent("upload-events")
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, s.suffix, []string{objectCreatedEvent})
	for {
		var info notification.Info
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case info, ok = <-notificationCh:
		}

		switch {
		case ctx.Err() != nil:
			return nil
		case !ok:
			return errors.New("minio notification stream closed")
		case info.Err != nil:
			return fmt.Errorf("minio notification stream error: %w", info.Err)
		}

		for _, record := range info.Records {
			event, err := uploadEventFromRecord(record)
			if err != nil {
				metrics.RecordUploadEventSkipped()
				logger.Warn().Err(err).Str("raw_key", record.S3.Object.Key).Msg("skipping bucket notification")
				continue
			}
			if err := handler(ctx, event); err != nil {
				return err
			}
		}
	}
}

func uploadEventFromRecord(record notification.Event) (UploadEvent, error) {
	objectKey, err := decodeObjectKey(record.S3.Object.Key)
	if err != nil {
		return UploadEvent{}, err
	}
	event, err := parseObjectKey(objectKey)
	if err != nil {
		return UploadEvent{}, err
	}
	event.EventName = record.EventName
	return event, nil
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("unescape object key: %w", err)
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", errors.New("object key is empty")
	}
	return decoded, nil
}

// parseObjectKey splits <work order id>/<attachment id>/<filename>. The
// filename segment may itself contain slashes.
func parseObjectKey(objectKey string) (UploadEvent, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 3)
	if len(parts) != 3 {
		return UploadEvent{}, fmt.Errorf("object key %q does not match work_order_id/attachment_id/filename", objectKey)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return UploadEvent{}, fmt.Errorf("object key %q has an empty segment", objectKey)
		}
	}
	return UploadEvent{
		WorkOrderID:  parts[0],
		AttachmentID: parts[1],
		Filename:     parts[2],
		ObjectKey:    objectKey,
	}, nil
}

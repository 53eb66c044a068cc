package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// minPartSize is the smallest multipart part S3 accepts (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// SnapshotExporter overwrites a single object with every published snapshot,
// so static consumers can poll the latest state without a socket. It keeps
// no history.
type SnapshotExporter struct {
	uploader *manager.Uploader
	bucket   string
	key      string
}

// NewSnapshotExporter writes to location, which follows the Reader's
// location rules.
func NewSnapshotExporter(c *Client, location string) (*SnapshotExporter, error) {
	bucket, key, err := splitLocation(location, c.Bucket())
	if err != nil {
		return nil, err
	}
	uploader := manager.NewUploader(c.S3(), func(u *manager.Uploader) {
		u.PartSize = minPartSize
	})
	return &SnapshotExporter{uploader: uploader, bucket: bucket, key: key}, nil
}

// Publish implements domain.SnapshotSink.
func (e *SnapshotExporter) Publish(ctx context.Context, snap *domain.Snapshot) error {
	body, err := json.Marshal(snap.View())
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}
	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(e.bucket),
		Key:          aws.String(e.key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s/%s: %w", e.bucket, e.key, err)
	}
	return nil
}

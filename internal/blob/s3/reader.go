package s3blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Scheme is the location prefix routed to this package.
const Scheme = "s3://"

// Reader implements domain.ObjectStore on top of an S3 bucket. Locations are
// either "s3://bucket/key" or a bare key in the client's default bucket.
type Reader struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
}

// NewReader creates a Reader for the given client.
func NewReader(c *Client) *Reader {
	return &Reader{
		client:     c.S3(),
		downloader: manager.NewDownloader(c.S3()),
		bucket:     c.Bucket(),
	}
}

// Stat issues a HeadObject for the location.
func (r *Reader) Stat(ctx context.Context, location string) (domain.ObjectInfo, error) {
	bucket, key, err := r.resolve(location)
	if err != nil {
		return domain.ObjectInfo{}, err
	}
	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ObjectInfo{}, fmt.Errorf("s3blob: stat %s: %w", location, domain.ErrNotFound)
		}
		return domain.ObjectInfo{}, fmt.Errorf("s3blob: stat %s: %w", location, err)
	}

	info := domain.ObjectInfo{Size: aws.ToInt64(out.ContentLength)}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// ReadAll downloads the whole object into memory.
func (r *Reader) ReadAll(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := r.resolve(location)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer(nil)
	_, err = r.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", location, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", location, err)
	}
	return buf.Bytes(), nil
}

func (r *Reader) resolve(location string) (bucket, key string, err error) {
	return splitLocation(location, r.bucket)
}

// splitLocation parses "s3://bucket/key" or a bare key.
func splitLocation(location, defaultBucket string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, Scheme)
	if !ok {
		if defaultBucket == "" {
			return "", "", fmt.Errorf("s3blob: location %q names no bucket", location)
		}
		return defaultBucket, strings.TrimPrefix(location, "/"), nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3blob: malformed location %q", location)
	}
	return bucket, key, nil
}

// isNotFound reports whether err means the object does not exist. HeadObject
// returns a bare 404 rather than NoSuchKey, and some providers only expose the
// status code.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}

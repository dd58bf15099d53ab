package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Reader implements domain.BlobReader using an S3-compatible backend.
type Reader struct {
	c *Client
}

// NewReader creates a Reader over the client's bucket and prefix.
func NewReader(c *Client) *Reader {
	return &Reader{c: c}
}

// Get returns the object body; the caller closes it. A missing object wraps
// domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	output, err := r.c.S3().GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.c.Bucket()),
		Key:    aws.String(r.c.objectKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return output.Body, nil
}

// List returns every object under prefix, following continuation tokens.
// Paths are reported without the client prefix.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo

	paginator := s3.NewListObjectsV2Paginator(r.c.S3(), &s3.ListObjectsV2Input{
		Bucket: aws.String(r.c.Bucket()),
		Prefix: aws.String(r.c.objectKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: strings.TrimPrefix(aws.ToString(obj.Key), r.c.prefix),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

// Exists issues HeadObject; only a not-found response reports false.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.c.S3().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.c.Bucket()),
		Key:    aws.String(r.c.objectKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
	}
	return true, nil
}

// isNotFound recognises NoSuchKey, the bare 404 HeadObject returns, and
// providers that only surface an HTTP status.
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
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404 {
		return true
	}

	return false
}

var _ domain.BlobReader = (*Reader)(nil)

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// deleteChunkSize is the S3 per-request object-delete limit
const deleteChunkSize = 1000

// S3Backend implements Backend on Amazon S3 or any S3-compatible store
type S3Backend struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Backend creates an S3 backend and verifies the target bucket is
// reachable. Construction fails fast with a BackendError when it is not;
// this is a startup-time check, not a per-operation one.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Region == "" {
		return nil, backendErr("s3", "configure", errors.New("region is required"))
	}
	if cfg.Bucket == "" {
		return nil, backendErr("s3", "configure", errors.New("bucket is required"))
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, backendErr("s3", "create session", err)
	}

	b := &S3Backend{
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		s3Client: s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}

	if _, err := b.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, backendErr("s3", fmt.Sprintf("head bucket %s", cfg.Bucket), err)
	}

	return b, nil
}

// key maps a namespace-relative path onto the object key space
func (b *S3Backend) key(namespace, relPath string) string {
	return path.Join(b.prefix, namespace, relPath)
}

// nsPrefix is the key prefix covering every object in the namespace
func (b *S3Backend) nsPrefix(namespace string) string {
	return path.Join(b.prefix, namespace) + "/"
}

// Save uploads content; overwrites are idempotent
func (b *S3Backend) Save(ctx context.Context, namespace, relPath string, content []byte) (string, error) {
	key := b.key(namespace, relPath)
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return "", backendErr("s3", fmt.Sprintf("upload %s", key), err)
	}
	return b.Locator(namespace, relPath), nil
}

// Get downloads an object, returning ErrNotFound when absent
func (b *S3Backend) Get(ctx context.Context, namespace, relPath string) ([]byte, error) {
	key := b.key(namespace, relPath)
	out, err := b.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, backendErr("s3", fmt.Sprintf("get %s", key), err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, backendErr("s3", fmt.Sprintf("read %s", key), err)
	}
	return buf.Bytes(), nil
}

// Delete removes a single object. Returns false when it never existed.
func (b *S3Backend) Delete(ctx context.Context, namespace, relPath string) (bool, error) {
	key := b.key(namespace, relPath)
	_, err := b.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, backendErr("s3", fmt.Sprintf("head %s", key), err)
	}

	if _, err := b.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, backendErr("s3", fmt.Sprintf("delete %s", key), err)
	}
	return true, nil
}

// DeleteAll removes every object under the namespace, batch-deleting in
// chunks no larger than the store's per-request limit and re-listing until
// the namespace is exhausted. Re-listing keeps the operation resumable after
// a partial failure; no in-memory cursor is tracked across rounds.
func (b *S3Backend) DeleteAll(ctx context.Context, namespace string) (bool, error) {
	deleted := false
	for {
		keys, err := b.listKeys(ctx, namespace)
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			return deleted, nil
		}

		for _, chunk := range chunkKeys(keys, deleteChunkSize) {
			objects := make([]*s3.ObjectIdentifier, 0, len(chunk))
			for _, k := range chunk {
				objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
			}
			_, err := b.s3Client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(b.bucket),
				Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return deleted, backendErr("s3", fmt.Sprintf("batch delete in %s", namespace), err)
			}
			deleted = true
		}
	}
}

// Exists reports object existence; an empty relPath checks whether the
// namespace has any member
func (b *S3Backend) Exists(ctx context.Context, namespace, relPath string) (bool, error) {
	if relPath == "" {
		out, err := b.s3Client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(b.bucket),
			Prefix:  aws.String(b.nsPrefix(namespace)),
			MaxKeys: aws.Int64(1),
		})
		if err != nil {
			return false, backendErr("s3", fmt.Sprintf("list %s", namespace), err)
		}
		return aws.Int64Value(out.KeyCount) > 0, nil
	}

	_, err := b.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(namespace, relPath)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, backendErr("s3", fmt.Sprintf("head %s", relPath), err)
	}
	return true, nil
}

// List returns sorted namespace-relative paths matching prefix
func (b *S3Backend) List(ctx context.Context, namespace, prefix string, recursive bool) ([]string, error) {
	nsPrefix := b.nsPrefix(namespace)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(nsPrefix + prefix),
	}

	var paths []string
	err := b.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			paths = append(paths, strings.TrimPrefix(aws.StringValue(obj.Key), nsPrefix))
		}
		return !lastPage
	})
	if err != nil {
		return nil, backendErr("s3", fmt.Sprintf("list %s", namespace), err)
	}
	paths = filterPaths(paths, prefix, recursive)
	sort.Strings(paths)
	return paths, nil
}

// Size sums object sizes under the namespace
func (b *S3Backend) Size(ctx context.Context, namespace string) (int64, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.nsPrefix(namespace)),
	}

	var total int64
	err := b.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			total += aws.Int64Value(obj.Size)
		}
		return !lastPage
	})
	if err != nil {
		return 0, backendErr("s3", fmt.Sprintf("size %s", namespace), err)
	}
	return total, nil
}

// Locator returns the object-store URI for diagnostics
func (b *S3Backend) Locator(namespace, relPath string) string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.key(namespace, relPath))
}

// listKeys returns the full object keys currently under the namespace
func (b *S3Backend) listKeys(ctx context.Context, namespace string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.nsPrefix(namespace)),
	}

	var keys []string
	err := b.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return !lastPage
	})
	if err != nil {
		return nil, backendErr("s3", fmt.Sprintf("list %s", namespace), err)
	}
	return keys, nil
}

// chunkKeys splits keys into batches of at most size entries
func chunkKeys(keys []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for len(keys) > 0 {
		n := size
		if n > len(keys) {
			n = len(keys)
		}
		chunks = append(chunks, keys[:n])
		keys = keys[n:]
	}
	return chunks
}

// isS3NotFound reports whether err is an S3 missing-object response
func isS3NotFound(err error) bool {
	var ae awserr.Error
	if errors.As(err, &ae) {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBackend implements Backend on Google Cloud Storage
type GCSBackend struct {
	client *gcstorage.Client
	bucket string
	prefix string
}

// NewGCSBackend creates a GCS backend and verifies the target bucket is
// reachable, failing fast with a BackendError otherwise.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, backendErr("gcs", "configure", errors.New("bucket is required"))
	}

	var opts []option.ClientOption
	if cfg.CredentialFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialFile))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, backendErr("gcs", "create client", err)
	}

	b := &GCSBackend{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}

	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		return nil, backendErr("gcs", fmt.Sprintf("head bucket %s", cfg.Bucket), err)
	}

	return b, nil
}

func (b *GCSBackend) key(namespace, relPath string) string {
	return path.Join(b.prefix, namespace, relPath)
}

func (b *GCSBackend) nsPrefix(namespace string) string {
	return path.Join(b.prefix, namespace) + "/"
}

// Save writes content; overwrites are idempotent
func (b *GCSBackend) Save(ctx context.Context, namespace, relPath string, content []byte) (string, error) {
	key := b.key(namespace, relPath)
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(content); err != nil {
		w.Close()
		return "", backendErr("gcs", fmt.Sprintf("write %s", key), err)
	}
	if err := w.Close(); err != nil {
		return "", backendErr("gcs", fmt.Sprintf("finalize %s", key), err)
	}
	return b.Locator(namespace, relPath), nil
}

// Get reads an object, returning ErrNotFound when absent
func (b *GCSBackend) Get(ctx context.Context, namespace, relPath string) ([]byte, error) {
	key := b.key(namespace, relPath)
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, backendErr("gcs", fmt.Sprintf("open %s", key), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, backendErr("gcs", fmt.Sprintf("read %s", key), err)
	}
	return data, nil
}

// Delete removes a single object. Returns false when it never existed.
func (b *GCSBackend) Delete(ctx context.Context, namespace, relPath string) (bool, error) {
	key := b.key(namespace, relPath)
	err := b.client.Bucket(b.bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, backendErr("gcs", fmt.Sprintf("delete %s", key), err)
	}
	return true, nil
}

// DeleteAll removes every object under the namespace, re-listing between
// rounds so partial failures are resumable. GCS has no batch-delete call,
// so objects are removed one by one.
func (b *GCSBackend) DeleteAll(ctx context.Context, namespace string) (bool, error) {
	deleted := false
	for {
		keys, err := b.listKeys(ctx, namespace)
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			return deleted, nil
		}
		for _, key := range keys {
			err := b.client.Bucket(b.bucket).Object(key).Delete(ctx)
			if err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
				return deleted, backendErr("gcs", fmt.Sprintf("delete %s", key), err)
			}
			deleted = true
		}
	}
}

// Exists reports object existence; an empty relPath checks whether the
// namespace has any member
func (b *GCSBackend) Exists(ctx context.Context, namespace, relPath string) (bool, error) {
	if relPath == "" {
		it := b.client.Bucket(b.bucket).Objects(ctx, &gcstorage.Query{Prefix: b.nsPrefix(namespace)})
		_, err := it.Next()
		if err == iterator.Done {
			return false, nil
		}
		if err != nil {
			return false, backendErr("gcs", fmt.Sprintf("list %s", namespace), err)
		}
		return true, nil
	}

	_, err := b.client.Bucket(b.bucket).Object(b.key(namespace, relPath)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, backendErr("gcs", fmt.Sprintf("stat %s", relPath), err)
	}
	return true, nil
}

// List returns sorted namespace-relative paths matching prefix
func (b *GCSBackend) List(ctx context.Context, namespace, prefix string, recursive bool) ([]string, error) {
	nsPrefix := b.nsPrefix(namespace)
	it := b.client.Bucket(b.bucket).Objects(ctx, &gcstorage.Query{Prefix: nsPrefix + prefix})

	var paths []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, backendErr("gcs", fmt.Sprintf("list %s", namespace), err)
		}
		paths = append(paths, strings.TrimPrefix(attrs.Name, nsPrefix))
	}
	paths = filterPaths(paths, prefix, recursive)
	sort.Strings(paths)
	return paths, nil
}

// Size sums object sizes under the namespace
func (b *GCSBackend) Size(ctx context.Context, namespace string) (int64, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &gcstorage.Query{Prefix: b.nsPrefix(namespace)})

	var total int64
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, backendErr("gcs", fmt.Sprintf("size %s", namespace), err)
		}
		total += attrs.Size
	}
	return total, nil
}

// Locator returns the object-store URI for diagnostics
func (b *GCSBackend) Locator(namespace, relPath string) string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, b.key(namespace, relPath))
}

func (b *GCSBackend) listKeys(ctx context.Context, namespace string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &gcstorage.Query{Prefix: b.nsPrefix(namespace)})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, backendErr("gcs", fmt.Sprintf("list %s", namespace), err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Package storage provides a uniform backend contract over a project's file
// namespace, implemented identically by a local filesystem, Amazon S3
// (or any S3-compatible store) and Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
)

// Backend is the storage contract shared by all implementations. A namespace
// is the set of all objects addressed under one identifier (a project or
// batch), regardless of where the bytes live. Relative paths always use
// forward-slash separators on every backend so callers observe identical
// behavior.
type Backend interface {
	// Save writes content under namespace/relPath, creating intermediate
	// directories or prefixes as needed. Overwrites are idempotent.
	// Returns a backend-specific locator for the stored object.
	Save(ctx context.Context, namespace, relPath string, content []byte) (string, error)

	// Get reads an object. Returns ErrNotFound when it does not exist.
	Get(ctx context.Context, namespace, relPath string) ([]byte, error)

	// Delete removes a single object. Returns false (not an error) when the
	// target never existed.
	Delete(ctx context.Context, namespace, relPath string) (bool, error)

	// DeleteAll removes every object under the namespace. Returns false when
	// the namespace had no members.
	DeleteAll(ctx context.Context, namespace string) (bool, error)

	// Exists reports whether an object exists. An empty relPath asks whether
	// the namespace has any member at all.
	Exists(ctx context.Context, namespace, relPath string) (bool, error)

	// List returns the sorted forward-slash relative paths of objects under
	// the namespace whose path starts with prefix. Non-recursive listing
	// excludes any path containing a further separator beyond the prefix.
	List(ctx context.Context, namespace, prefix string, recursive bool) ([]string, error)

	// Size returns the sum of all object sizes under the namespace.
	Size(ctx context.Context, namespace string) (int64, error)

	// Locator returns a backend-specific addressable reference (filesystem
	// path or object-store URI). Diagnostics only, never parsed by callers.
	Locator(namespace, relPath string) string
}

// Config selects and configures a backend. The provider choice is explicit;
// nothing inspects at runtime which implementation is active.
type Config struct {
	Provider string      `json:"provider" mapstructure:"provider"`
	Local    LocalConfig `json:"local" mapstructure:"local"`
	S3       S3Config    `json:"s3" mapstructure:"s3"`
	GCS      GCSConfig   `json:"gcs" mapstructure:"gcs"`
}

// LocalConfig configures the filesystem backend
type LocalConfig struct {
	BasePath string `json:"basePath" mapstructure:"basePath"`
}

// S3Config configures the S3-compatible backend. Endpoint is optional and
// allows pointing at MinIO or another S3-compatible store.
type S3Config struct {
	Region         string `json:"region" mapstructure:"region"`
	Bucket         string `json:"bucket" mapstructure:"bucket"`
	Prefix         string `json:"prefix" mapstructure:"prefix"`
	AccessKey      string `json:"accessKey" mapstructure:"accessKey"`
	SecretKey      string `json:"secretKey" mapstructure:"secretKey"`
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	ForcePathStyle bool   `json:"forcePathStyle" mapstructure:"forcePathStyle"`
}

// GCSConfig configures the Google Cloud Storage backend
type GCSConfig struct {
	Bucket         string `json:"bucket" mapstructure:"bucket"`
	Prefix         string `json:"prefix" mapstructure:"prefix"`
	CredentialFile string `json:"credentialFile" mapstructure:"credentialFile"`
}

// NewBackend creates the backend selected by cfg.Provider. Object-store
// backends verify at construction time that the target bucket is reachable
// and fail fast with a BackendError otherwise.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalBackend(cfg.Local)
	case "s3":
		return NewS3Backend(ctx, cfg.S3)
	case "gcs":
		return NewGCSBackend(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage provider type: %s", cfg.Provider)
	}
}

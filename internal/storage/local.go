package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBackend implements Backend on the local filesystem
type LocalBackend struct {
	basePath string
}

// NewLocalBackend creates a filesystem backend rooted at cfg.BasePath
func NewLocalBackend(cfg LocalConfig) (*LocalBackend, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "./storage"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, backendErr("local", "create base directory", err)
	}
	return &LocalBackend{basePath: basePath}, nil
}

// path maps a namespace-relative slash path onto the filesystem
func (l *LocalBackend) path(namespace, relPath string) string {
	p := filepath.Join(l.basePath, filepath.FromSlash(namespace))
	if relPath != "" {
		p = filepath.Join(p, filepath.FromSlash(relPath))
	}
	return p
}

// Save writes content, creating intermediate directories as needed
func (l *LocalBackend) Save(ctx context.Context, namespace, relPath string, content []byte) (string, error) {
	target := l.path(namespace, relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", backendErr("local", "create directories", err)
	}
	if err := os.WriteFile(target, content, 0644); err != nil {
		return "", backendErr("local", fmt.Sprintf("write %s", relPath), err)
	}
	return target, nil
}

// Get reads an object, returning ErrNotFound when it is absent
func (l *LocalBackend) Get(ctx context.Context, namespace, relPath string) ([]byte, error) {
	data, err := os.ReadFile(l.path(namespace, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", namespace, relPath, ErrNotFound)
		}
		return nil, backendErr("local", fmt.Sprintf("read %s", relPath), err)
	}
	return data, nil
}

// Delete removes a single file. Returns false when it never existed.
func (l *LocalBackend) Delete(ctx context.Context, namespace, relPath string) (bool, error) {
	err := os.Remove(l.path(namespace, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, backendErr("local", fmt.Sprintf("delete %s", relPath), err)
	}
	return true, nil
}

// DeleteAll removes the entire namespace directory
func (l *LocalBackend) DeleteAll(ctx context.Context, namespace string) (bool, error) {
	root := l.path(namespace, "")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(root); err != nil {
		return false, backendErr("local", fmt.Sprintf("delete namespace %s", namespace), err)
	}
	return true, nil
}

// Exists reports whether the file exists; an empty relPath asks whether the
// namespace has any member at all
func (l *LocalBackend) Exists(ctx context.Context, namespace, relPath string) (bool, error) {
	if relPath == "" {
		paths, err := l.List(ctx, namespace, "", true)
		if err != nil {
			return false, err
		}
		return len(paths) > 0, nil
	}
	if _, err := os.Stat(l.path(namespace, relPath)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, backendErr("local", fmt.Sprintf("stat %s", relPath), err)
	}
	return true, nil
}

// List returns sorted forward-slash relative paths under the namespace
func (l *LocalBackend) List(ctx context.Context, namespace, prefix string, recursive bool) ([]string, error) {
	root := l.path(namespace, "")
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, backendErr("local", fmt.Sprintf("list namespace %s", namespace), err)
	}
	paths = filterPaths(paths, prefix, recursive)
	sort.Strings(paths)
	return paths, nil
}

// Size sums all file sizes under the namespace
func (l *LocalBackend) Size(ctx context.Context, namespace string) (int64, error) {
	root := l.path(namespace, "")
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, backendErr("local", fmt.Sprintf("size namespace %s", namespace), err)
	}
	return total, nil
}

// Locator returns the absolute filesystem path for diagnostics
func (l *LocalBackend) Locator(namespace, relPath string) string {
	abs, err := filepath.Abs(l.path(namespace, relPath))
	if err != nil {
		return l.path(namespace, relPath)
	}
	return abs
}

// filterPaths keeps the paths matching prefix; non-recursive filtering
// excludes any path with a separator beyond the prefix. Shared by all
// backends so listing semantics stay identical.
func filterPaths(paths []string, prefix string, recursive bool) []string {
	out := paths[:0]
	for _, p := range paths {
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && strings.Contains(p[len(prefix):], "/") {
			continue
		}
		out = append(out, p)
	}
	return out
}

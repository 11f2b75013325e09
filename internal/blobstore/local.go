package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const localTmpDir = ".tmp"

// LocalStore keeps objects as files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local object store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, localTmpDir), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// Put writes bytes to key via a temp file and rename, so readers never see partial objects.
func (c *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if c == nil {
		return fmt.Errorf("object store is not configured")
	}
	if r == nil {
		return fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := c.pathFromKey(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, localTmpDir), "put-*")
	if err != nil {
		return c.wrap(OpPut, key, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return c.wrap(OpPut, key, err)
	}
	if size >= 0 && n != size {
		cleanup()
		return c.wrap(OpPut, key, fmt.Errorf("short write: wrote %d of %d bytes", n, size))
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return c.wrap(OpPut, key, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return c.wrap(OpPut, key, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return c.wrap(OpPut, key, err)
	}
	return nil
}

// Open returns a reader for key content.
func (c *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("object store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, c.wrap(OpOpen, key, err)
	}
	return f, nil
}

// Delete removes an object. Missing files are ignored.
func (c *LocalStore) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("object store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c.wrap(OpDelete, key, err)
	}
	return nil
}

// List walks every object under prefix in lexical order.
func (c *LocalStore) List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error {
	if c == nil {
		return fmt.Errorf("object store is not configured")
	}
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == localTmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
	})
	return err
}

func (c *LocalStore) wrap(op, key string, err error) error {
	return &StoreError{Op: op, Key: key, Service: true, Err: err}
}

func (c *LocalStore) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("object key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key")
	}
	if clean == localTmpDir || strings.HasPrefix(clean, localTmpDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key")
	}
	return filepath.Join(c.root, clean), nil
}

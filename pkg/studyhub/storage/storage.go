// Package storage keeps uploaded files on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directories under the storage root
const (
	DirMaterials = "materials"
	DirAvatars   = "avatars"
)

// ErrInvalidKey is returned for keys that escape the storage root
var ErrInvalidKey = errors.New("invalid storage key")

// BlobStore stores file contents and hands back an opaque key
type BlobStore interface {
	// Save copies r into dir under a generated name that keeps filename's extension
	Save(ctx context.Context, dir, filename string, r io.Reader) (key string, size int64, err error)
	// Delete removes a stored blob; deleting a missing blob is not an error
	Delete(ctx context.Context, key string) error
}

// LocalStorage handles saving files to the local filesystem.
type LocalStorage struct {
	basePath string
}

var _ BlobStore = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage rooted at basePath, creating it if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		zap.L().Error("failed to create storage directory", zap.String("path", basePath), zap.Error(err))
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	zap.L().Debug("local storage directory ensured", zap.String("path", basePath))
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes r to a uniquely named file in dir and returns its key ("dir/name.ext")
func (ls *LocalStorage) Save(ctx context.Context, dir, filename string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	fullDirPath := filepath.Join(ls.basePath, filepath.FromSlash(dir))
	if err := os.MkdirAll(fullDirPath, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create subdirectory: %w", err)
	}

	// Generate a unique filename to prevent collisions
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	key := path.Join(dir, name)
	dstPath := filepath.Join(fullDirPath, name)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create destination file: %w", err)
	}

	size, err := io.Copy(dst, r)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// Attempt to remove the partially written file
		_ = os.Remove(dstPath)
		return "", 0, fmt.Errorf("failed to save file content: %w", err)
	}

	zap.L().Debug("file saved",
		zap.String("filename", filename),
		zap.String("key", key),
		zap.Int64("size", size))
	return key, size, nil
}

// Delete removes the blob for key. Missing files are ignored.
func (ls *LocalStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	physicalPath, err := ls.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(physicalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Error("failed to delete file", zap.String("path", physicalPath), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Path returns the filesystem path for key, rejecting keys outside the root
func (ls *LocalStorage) Path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	return filepath.Join(ls.basePath, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

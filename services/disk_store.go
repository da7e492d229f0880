package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/kendall-kelly/storefront-api/utils"
)

// DiskStore keeps images in a local directory served under /api/v1/uploads
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Put saves the file as dir/key
func (d *DiskStore) Put(ctx context.Context, key string, fileHeader *multipart.FileHeader) error {
	return utils.SaveUploadedFile(fileHeader, d.dir, key)
}

// URL returns the public path of key
func (d *DiskStore) URL(ctx context.Context, key string) (string, error) {
	return utils.GetImageURL(filepath.Base(key)), nil
}

// Delete removes dir/key. Missing files are ignored.
func (d *DiskStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	err := os.Remove(filepath.Join(d.dir, filepath.Base(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

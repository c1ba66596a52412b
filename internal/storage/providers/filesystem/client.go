// Package filesystem implements storage.Client over a local directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/spf13/afero"

	"github.com/mrlokans/librarysync/internal/storage"
)

// Client implements storage.Client on an afero filesystem
type Client struct {
	fs afero.Fs
}

// NewClient creates a client rooted at dir on the OS filesystem. The
// directory must exist.
func NewClient(dir string) (*Client, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return NewClientFromFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewClientFromFs wraps an existing afero filesystem.
func NewClientFromFs(fsys afero.Fs) *Client {
	return &Client{fs: fsys}
}

func (c *Client) List(ctx context.Context, dir string) ([]storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(c.fs, storage.Join(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, wrap(err))
	}

	result := make([]storage.FileInfo, 0, len(entries))
	for _, entry := range entries {
		result = append(result, convert(storage.Join(dir, entry.Name()), entry))
	}
	return result, nil
}

func (c *Client) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.fs.Open(storage.Join(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, wrap(err))
	}
	return f, nil
}

// Upload writes to a temporary file next to the target and renames it into place.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := storage.Join(name)
	dir := path.Dir(target)
	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(c.fs, dir, ".librarysync-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		c.fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		c.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := c.fs.Rename(tmpName, target); err != nil {
		c.fs.Remove(tmpName)
		return fmt.Errorf("failed to rename into %s: %w", name, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.fs.RemoveAll(storage.Join(name)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(c.fs, storage.Join(name))
}

func (c *Client) GetMetadata(ctx context.Context, name string) (*storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := storage.Join(name)
	info, err := c.fs.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, wrap(err))
	}
	fi := convert(p, info)
	return &fi, nil
}

func convert(p string, info os.FileInfo) storage.FileInfo {
	return storage.FileInfo{
		Name:       info.Name(),
		Path:       p,
		IsDir:      info.IsDir(),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		ID:         p,
	}
}

func wrap(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	return err
}

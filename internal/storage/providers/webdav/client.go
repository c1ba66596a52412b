// Package webdav implements storage.Client over a WebDAV collection.
package webdav

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/mrlokans/librarysync/internal/storage"
)

// Client implements storage.Client for WebDAV servers
type Client struct {
	dav *gowebdav.Client
}

// NewClient creates a WebDAV storage client rooted at baseURL.
func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	dav := gowebdav.NewClient(baseURL, username, password)
	if timeout > 0 {
		dav.SetTimeout(timeout)
	}
	return &Client{dav: dav}
}

// Connect verifies the server is reachable and the credentials are accepted.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dav.Connect(); err != nil {
		return fmt.Errorf("failed to connect to webdav server: %w", wrap(err))
	}
	return nil
}

func (c *Client) List(ctx context.Context, path string) ([]storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := c.dav.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, wrap(err))
	}

	result := make([]storage.FileInfo, 0, len(entries))
	for _, entry := range entries {
		result = append(result, convert(storage.Join(path, entry.Name()), entry))
	}
	return result, nil
}

func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := c.dav.ReadStream(path)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", path, wrap(err))
	}
	return stream, nil
}

func (c *Client) Upload(ctx context.Context, path string, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dav.WriteStream(path, content, 0644); err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, wrap(err))
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dav.RemoveAll(path); err != nil && !gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", path, wrap(err))
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	_, err := c.GetMetadata(ctx, path)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) GetMetadata(ctx context.Context, path string) (*storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := c.dav.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, wrap(err))
	}
	fi := convert(storage.Join(path), info)
	return &fi, nil
}

func convert(path string, info os.FileInfo) storage.FileInfo {
	fi := storage.FileInfo{
		Name:       info.Name(),
		Path:       path,
		IsDir:      info.IsDir(),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		ID:         path,
	}
	if f, ok := info.(*gowebdav.File); ok {
		fi.ContentHash = f.ETag()
	}
	return fi
}

// wrap marks missing paths with storage.ErrNotFound.
func wrap(err error) error {
	if gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	return err
}

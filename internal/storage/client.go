package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned (wrapped) when a remote file or directory does not exist.
var ErrNotFound = errors.New("not found")

// FileInfo contains metadata about a file or directory in remote storage
type FileInfo struct {
	Name        string
	Path        string
	IsDir       bool
	Size        int64
	ModifiedAt  time.Time
	ID          string // Provider-specific identifier
	ContentHash string // Provider-specific content hash (if available)
}

// Client defines the interface for remote storage operations. Paths are
// slash-separated and absolute within the client's root.
type Client interface {
	// List returns entries in the specified directory path
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Download retrieves the contents of a file
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Upload writes content to a file path, creating parent directories
	Upload(ctx context.Context, path string, content io.Reader) error

	// Delete removes a file, or a directory with its contents. Deleting a
	// missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists checks if a file or directory exists
	Exists(ctx context.Context, path string) (bool, error)

	// GetMetadata retrieves file info without downloading content
	GetMetadata(ctx context.Context, path string) (*FileInfo, error)
}

// APIError is a non-success response of an HTTP storage API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap maps 404 responses to ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == 404 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means the path does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ReadFile downloads a whole file.
func ReadFile(ctx context.Context, client Client, path string) ([]byte, error) {
	reader, err := client.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile uploads data to path.
func WriteFile(ctx context.Context, client Client, path string, data []byte) error {
	return client.Upload(ctx, path, bytes.NewReader(data))
}

// ListOrEmpty lists a directory, treating a missing directory as empty.
func ListOrEmpty(ctx context.Context, client Client, dir string) ([]FileInfo, error) {
	entries, err := client.List(ctx, dir)
	if IsNotFound(err) {
		return nil, nil
	}
	return entries, err
}

// FilterFiles returns the entries accepted by keep, in listing order.
func FilterFiles(files []FileInfo, keep func(FileInfo) bool) []FileInfo {
	var kept []FileInfo
	for _, f := range files {
		if keep(f) {
			kept = append(kept, f)
		}
	}
	return kept
}

// FindLatest returns the entry with the highest stamp, the first one on a
// tie, or nil for an empty list. A nil stamp orders by ModifiedAt.
func FindLatest(files []FileInfo, stamp func(FileInfo) int64) *FileInfo {
	if stamp == nil {
		stamp = func(f FileInfo) int64 { return f.ModifiedAt.UnixNano() }
	}
	var latest *FileInfo
	var latestStamp int64
	for i := range files {
		if s := stamp(files[i]); latest == nil || s > latestStamp {
			latest, latestStamp = &files[i], s
		}
	}
	return latest
}

// Join joins path elements into a clean absolute slash path.
func Join(elem ...string) string {
	return path.Clean("/" + strings.Join(elem, "/"))
}

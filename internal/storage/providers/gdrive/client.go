// Package gdrive implements storage.Client on the Google Drive v3 REST API.
// Drive addresses files by id, so paths are resolved one segment at a time
// starting from the "root" folder alias.
package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrlokans/librarysync/internal/storage"
)

const (
	providerName   = "gdrive"
	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = "id,name,mimeType,size,modifiedTime,md5Checksum"
)

const (
	DefaultAPIURL    = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// Client implements storage.Client for Google Drive
type Client struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
}

// NewClient creates a Google Drive client. httpClient is expected to attach
// authorization, e.g. one built by oauth2.Provider.Client.
func NewClient(httpClient *http.Client, apiURL, uploadURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
		uploadURL:  strings.TrimRight(uploadURL, "/"),
	}
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size,string"`
	ModifiedTime time.Time `json:"modifiedTime"`
	MD5Checksum  string    `json:"md5Checksum"`
}

type fileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &storage.APIError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, target, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// query runs a files.list query, following pagination.
func (c *Client) query(ctx context.Context, q string) ([]driveFile, error) {
	var files []driveFile
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("q", q)
		params.Set("fields", "nextPageToken,files("+fileFields+")")
		params.Set("spaces", "drive")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page fileList
		if err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/files?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}
		files = append(files, page.Files...)

		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) child(ctx context.Context, parentID, name string) (*driveFile, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parentID))
	files, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

// resolve walks p from the drive root and returns the file it names.
func (c *Client) resolve(ctx context.Context, p string) (*driveFile, error) {
	current := &driveFile{ID: "root", Name: "", MimeType: folderMimeType}
	for _, segment := range segments(p) {
		next, err := c.child(ctx, current.ID, segment)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("%s: %w", p, storage.ErrNotFound)
		}
		current = next
	}
	return current, nil
}

// ensureFolder resolves the folder path p, creating missing segments.
func (c *Client) ensureFolder(ctx context.Context, p string) (string, error) {
	parentID := "root"
	for _, segment := range segments(p) {
		next, err := c.child(ctx, parentID, segment)
		if err != nil {
			return "", err
		}
		if next == nil {
			next = &driveFile{}
			meta := map[string]any{"name": segment, "mimeType": folderMimeType, "parents": []string{parentID}}
			if err := c.doJSON(ctx, http.MethodPost, c.apiURL+"/files?fields=id", meta, next); err != nil {
				return "", fmt.Errorf("failed to create folder %s: %w", segment, err)
			}
		}
		parentID = next.ID
	}
	return parentID, nil
}

func (c *Client) List(ctx context.Context, dir string) ([]storage.FileInfo, error) {
	folder, err := c.resolve(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files, err := c.query(ctx, fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folder.ID)))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	result := make([]storage.FileInfo, 0, len(files))
	for _, f := range files {
		result = append(result, convert(storage.Join(dir, f.Name), f))
	}
	return result, nil
}

func (c *Client) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	file, err := c.resolve(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", p, err)
	}

	resp, err := c.do(ctx, http.MethodGet, c.apiURL+"/files/"+url.PathEscape(file.ID)+"?alt=media", nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", p, err)
	}
	return resp.Body, nil
}

// Upload replaces the content of an existing file or creates the metadata
// first and then sends the content as a media upload.
func (c *Client) Upload(ctx context.Context, p string, content io.Reader) error {
	clean := storage.Join(p)
	dir, name := splitPath(clean)

	parentID, err := c.ensureFolder(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}

	existing, err := c.child(ctx, parentID, name)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}

	fileID := ""
	if existing != nil {
		fileID = existing.ID
	} else {
		created := &driveFile{}
		meta := map[string]any{"name": name, "parents": []string{parentID}}
		if err := c.doJSON(ctx, http.MethodPost, c.apiURL+"/files?fields=id", meta, created); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
		fileID = created.ID
	}

	resp, err := c.do(ctx, http.MethodPatch,
		c.uploadURL+"/files/"+url.PathEscape(fileID)+"?uploadType=media", content, "application/octet-stream")
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Delete(ctx context.Context, p string) error {
	file, err := c.resolve(ctx, p)
	if storage.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	if file.ID == "root" {
		return fmt.Errorf("refusing to delete drive root")
	}

	err = c.doJSON(ctx, http.MethodDelete, c.apiURL+"/files/"+url.PathEscape(file.ID), nil, nil)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.resolve(ctx, p)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) GetMetadata(ctx context.Context, p string) (*storage.FileInfo, error) {
	file, err := c.resolve(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for %s: %w", p, err)
	}
	info := convert(storage.Join(p), *file)
	return &info, nil
}

func convert(p string, f driveFile) storage.FileInfo {
	return storage.FileInfo{
		Name:        f.Name,
		Path:        p,
		IsDir:       f.MimeType == folderMimeType,
		Size:        f.Size,
		ModifiedAt:  f.ModifiedTime,
		ID:          f.ID,
		ContentHash: f.MD5Checksum,
	}
}

func segments(p string) []string {
	clean := strings.TrimPrefix(storage.Join(p), "/")
	if clean == "" {
		return nil
	}
	return strings.Split(clean, "/")
}

func splitPath(p string) (dir, name string) {
	i := strings.LastIndex(p, "/")
	return p[:i+1], p[i+1:]
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

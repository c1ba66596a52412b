// Package onedrive implements storage.Client on the Microsoft Graph drive API
// using path-based addressing relative to the drive root.
package onedrive

import (
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

const providerName = "onedrive"

// DefaultAPIURL is the Microsoft Graph endpoint.
const DefaultAPIURL = "https://graph.microsoft.com/v1.0"

// Client implements storage.Client for OneDrive
type Client struct {
	httpClient *http.Client
	apiURL     string
}

// NewClient creates a OneDrive client. httpClient is expected to attach
// authorization, e.g. one built by oauth2.Provider.Client.
func NewClient(httpClient *http.Client, apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(apiURL, "/"),
	}
}

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	ETag                 string    `json:"eTag"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	File *struct {
		Hashes struct {
			SHA1Hash     string `json:"sha1Hash"`
			QuickXorHash string `json:"quickXorHash"`
		} `json:"hashes"`
	} `json:"file,omitempty"`
}

type childrenResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// itemURL addresses the item at p, with an optional trailing segment such as
// "children" or "content".
func (c *Client) itemURL(p, suffix string) string {
	clean := storage.Join(p)
	if clean == "/" {
		if suffix == "" {
			return c.apiURL + "/me/drive/root"
		}
		return c.apiURL + "/me/drive/root/" + suffix
	}

	segments := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := c.apiURL + "/me/drive/root:/" + strings.Join(segments, "/")
	if suffix == "" {
		return u
	}
	return u + ":/" + suffix
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

func (c *Client) List(ctx context.Context, dir string) ([]storage.FileInfo, error) {
	var result []storage.FileInfo
	next := c.itemURL(dir, "children")

	for next != "" {
		resp, err := c.do(ctx, http.MethodGet, next, nil, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		var page childrenResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		for _, item := range page.Value {
			result = append(result, convert(storage.Join(dir, item.Name), item))
		}
		next = page.NextLink
	}

	return result, nil
}

func (c *Client) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, c.itemURL(p, "content"), nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", p, err)
	}
	return resp.Body, nil
}

// Upload uses the simple upload endpoint, which creates missing parent folders.
func (c *Client) Upload(ctx context.Context, p string, content io.Reader) error {
	resp, err := c.do(ctx, http.MethodPut, c.itemURL(p, "content"), content, "application/octet-stream")
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Delete(ctx context.Context, p string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.itemURL(p, ""), nil, "")
	if storage.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.GetMetadata(ctx, p)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) GetMetadata(ctx context.Context, p string) (*storage.FileInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, c.itemURL(p, ""), nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for %s: %w", p, err)
	}
	defer resp.Body.Close()

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	info := convert(storage.Join(p), item)
	return &info, nil
}

func convert(p string, item driveItem) storage.FileInfo {
	info := storage.FileInfo{
		Name:        item.Name,
		Path:        p,
		IsDir:       item.Folder != nil,
		Size:        item.Size,
		ModifiedAt:  item.LastModifiedDateTime,
		ID:          item.ID,
		ContentHash: item.ETag,
	}
	if item.File != nil && item.File.Hashes.SHA1Hash != "" {
		info.ContentHash = item.File.Hashes.SHA1Hash
	}
	return info
}

// Package filestore implements replication.Handler over any storage.Client:
// local directories, WebDAV servers and cloud drives all share this layout.
//
//	<root>/<Title>/bookdata_<millis>.json
//	<root>/<Title>/progress_<millis>.json
//	<root>/<Title>/audiobook_<millis>.json
//	<root>/<Title>/subtitle_<millis>.json
//	<root>/<Title>/cover_<millis>.<ext>
//	<root>/<Title>/lastread_<millis>.json
//	<root>/statistics_<millis>.json
//	<root>/readinggoals_<millis>.json
//	<root>/<file>.epub (and other plain ebook files)
package filestore

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storage"
)

// Connector opens a storage client for a named source.
type Connector interface {
	Connect(ctx context.Context, sourceName string, askForUnlock bool) (storage.Client, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, sourceName string, askForUnlock bool) (storage.Client, error)

func (f ConnectorFunc) Connect(ctx context.Context, sourceName string, askForUnlock bool) (storage.Client, error) {
	return f(ctx, sourceName, askForUnlock)
}

// Cache is the local library that remote books are copied into for reading.
type Cache interface {
	SaveBook(ctx context.Context, book *entities.BookData) (uint, error)
	SaveBookmark(ctx context.Context, bookmark *entities.Bookmark) error
}

// Handler replicates library data to a file store.
type Handler struct {
	kind      entities.StorageKind
	connector Connector
	root      string
	cache     Cache
	now       func() time.Time

	mu         sync.Mutex
	settings   replication.Settings
	client     storage.Client
	generation uint64
	// listings caches folder listings while CacheStorageData is set
	listings map[string][]storage.FileInfo
}

// Option configures a Handler.
type Option func(*Handler)

// WithRoot sets the directory all files live under.
func WithRoot(root string) Option {
	return func(h *Handler) { h.root = storage.Join(root) }
}

// WithCache sets the local library used by PrepareBookForReading.
func WithCache(cache Cache) Option {
	return func(h *Handler) { h.cache = cache }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a handler of kind that connects through connector.
func New(kind entities.StorageKind, connector Connector, settings replication.Settings, opts ...Option) *Handler {
	h := &Handler{
		kind:      kind,
		connector: connector,
		root:      "/",
		now:       time.Now,
		settings:  settings,
		listings:  make(map[string][]storage.FileInfo),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Kind() entities.StorageKind {
	return h.kind
}

// Settings returns the current settings.
func (h *Handler) Settings() replication.Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}

func (h *Handler) UpdateSettings(settings replication.Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if settings.SourceName != h.settings.SourceName {
		h.invalidateLocked()
	}
	if !settings.CacheStorageData {
		clear(h.listings)
	}
	h.settings = settings
}

func (h *Handler) invalidateLocked() {
	h.generation++
	clear(h.listings)
	if h.client != nil {
		closeClient(h.client)
		h.client = nil
	}
}

func closeClient(client storage.Client) {
	if closer, ok := client.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logging.Warn("Failed to close storage client", logging.Err(err))
		}
	}
}

// connection returns the cached client, connecting on first use. A client
// obtained while the settings changed serves the calling operation only.
func (h *Handler) connection(ctx context.Context) (storage.Client, error) {
	h.mu.Lock()
	if h.client != nil {
		client := h.client
		h.mu.Unlock()
		return client, nil
	}
	generation := h.generation
	settings := h.settings
	h.mu.Unlock()

	client, err := h.connector.Connect(ctx, settings.SourceName, settings.AskForStorageUnlock)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if generation != h.generation {
		logging.Debug("Settings changed while connecting, not caching client",
			logging.Kind(string(h.kind)), logging.Source(settings.SourceName))
		return client, nil
	}
	if h.client != nil {
		closeClient(client)
		return h.client, nil
	}
	h.client = client
	logging.Debug("Connected to storage", logging.Kind(string(h.kind)), logging.Source(settings.SourceName))
	return client, nil
}

func (h *Handler) unavailable(op string, err error) error {
	return replication.Unavailable(h.kind, op, err)
}

func (h *Handler) nowMillis() int64 {
	return h.now().UnixMilli()
}

func (h *Handler) bookDir(folder string) string {
	return storage.Join(h.root, folder)
}

// list lists a folder of the root ("" for the root itself); a missing folder
// is empty.
func (h *Handler) list(ctx context.Context, client storage.Client, folder string) ([]storage.FileInfo, error) {
	h.mu.Lock()
	cached, ok := h.listings[folder]
	useCache := h.settings.CacheStorageData
	h.mu.Unlock()
	if useCache && ok {
		return cached, nil
	}

	entries, err := storage.ListOrEmpty(ctx, client, h.bookDir(folder))
	if err != nil {
		return nil, h.unavailable("list", err)
	}

	if useCache {
		h.mu.Lock()
		h.listings[folder] = entries
		h.mu.Unlock()
	}
	return entries, nil
}

func (h *Handler) forget(folder string) {
	h.mu.Lock()
	delete(h.listings, folder)
	h.mu.Unlock()
}

// ClearData drops cached listings. With clearAll the cached connection is
// released as well.
func (h *Handler) ClearData(_ context.Context, clearAll bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.listings)
	if clearAll {
		h.invalidateLocked()
	}
	return nil
}

var _ replication.Handler = (*Handler)(nil)

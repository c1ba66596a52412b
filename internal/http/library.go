package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarysync/internal/database/library"
	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/scheduler"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// HandlerProvider returns the replication handler of a storage kind.
// backends.Set satisfies it.
type HandlerProvider interface {
	Handler(kind entities.StorageKind) (replication.Handler, error)
}

// SourceSelection resolves active sources.
type SourceSelection interface {
	ActiveSource(kind entities.StorageKind) string
}

// SecretChecker reports whether a source opens only with a caller supplied
// secret. storagesource.Coordinator satisfies it.
type SecretChecker interface {
	NeedsSecret(ctx context.Context, name string) (bool, error)
}

// DeleteBooksRequest is the body of POST /api/library/:kind/delete.
type DeleteBooksRequest struct {
	Titles              []string `json:"titles" binding:"required"`
	KeepLocalStatistics bool     `json:"keep_local_statistics"`
}

type BookListResponse struct {
	Kind   entities.StorageKind      `json:"kind"`
	Source string                    `json:"source,omitempty"`
	Books  []replication.BookSummary `json:"books"`
}

type SyncStatusResponse struct {
	Running bool   `json:"running"`
	NextRun string `json:"next_run,omitempty"`
}

type LibraryController struct {
	handlers  HandlerProvider
	selection SourceSelection
	secrets   SecretChecker
	entries   *library.Repository
	scheduler *scheduler.LibrarySyncScheduler
}

// NewLibraryController creates the library controller. secrets may be nil,
// in which case requests reuse whatever connection a handler has cached.
func NewLibraryController(handlers HandlerProvider, selection SourceSelection, secrets SecretChecker, entries *library.Repository, sched *scheduler.LibrarySyncScheduler) *LibraryController {
	return &LibraryController{handlers: handlers, selection: selection, secrets: secrets, entries: entries, scheduler: sched}
}

func (lc *LibraryController) handler(c *gin.Context) (entities.StorageKind, replication.Handler, bool) {
	kind, ok := parseKindParam(c, "kind")
	if !ok {
		return "", nil, false
	}
	if err := lc.requireSecret(c.Request.Context(), kind); err != nil {
		respondStorageError(c, err, "open storage")
		return "", nil, false
	}
	h, err := lc.handlers.Handler(kind)
	if err != nil {
		respondStorageError(c, err, "open storage")
		return "", nil, false
	}
	return kind, h, true
}

// requireSecret rejects requests without a secret header for encrypted
// sources, even when an earlier request left the handler connected.
func (lc *LibraryController) requireSecret(ctx context.Context, kind entities.StorageKind) error {
	if lc.secrets == nil {
		return nil
	}
	if _, ok := storagesource.SecretFromContext(ctx); ok {
		return nil
	}
	name := lc.selection.ActiveSource(kind)
	needs, err := lc.secrets.NeedsSecret(ctx, name)
	if err != nil {
		return err
	}
	if needs {
		return fmt.Errorf("%w: %s is encrypted, send its secret in the %s header", storagesource.ErrUnlockFailed, name, SecretHeader)
	}
	return nil
}

// Books lists the books stored on a backend.
// GET /api/library/:kind/books
func (lc *LibraryController) Books(c *gin.Context) {
	kind, h, ok := lc.handler(c)
	if !ok {
		return
	}
	books, err := h.GetBookList(c.Request.Context())
	if err != nil {
		respondStorageError(c, err, "list books")
		return
	}
	if books == nil {
		books = []replication.BookSummary{}
	}
	c.JSON(http.StatusOK, BookListResponse{Kind: kind, Source: lc.selection.ActiveSource(kind), Books: books})
}

// Delete removes the data of the given titles. A client disconnect cancels
// the remaining deletions.
// POST /api/library/:kind/delete
func (lc *LibraryController) Delete(c *gin.Context) {
	var req DeleteBooksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}
	titles := make([]string, 0, len(req.Titles))
	for _, title := range req.Titles {
		if title = strings.TrimSpace(title); title != "" {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		respondBadRequest(c, "titles are required")
		return
	}

	_, h, ok := lc.handler(c)
	if !ok {
		return
	}
	result, err := h.DeleteBookData(c.Request.Context(), titles, req.KeepLocalStatistics)
	if err != nil {
		respondStorageError(c, err, "delete books")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Entries returns the last synced snapshot of a backend's book list.
// GET /api/library/:kind/entries
func (lc *LibraryController) Entries(c *gin.Context) {
	kind, ok := parseKindParam(c, "kind")
	if !ok {
		return
	}
	entries, err := lc.entries.ListEntries(c.Request.Context(), kind, lc.selection.ActiveSource(kind))
	if err != nil {
		respondInternalError(c, err, "list library entries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// SyncStatus reports the scheduler state.
// GET /api/library/sync
func (lc *LibraryController) SyncStatus(c *gin.Context) {
	resp := SyncStatusResponse{Running: lc.scheduler.IsRunning()}
	if next := lc.scheduler.GetNextRunTime(); next != nil {
		resp.NextRun = next.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// SyncNow starts a library snapshot in the background.
// POST /api/library/sync
func (lc *LibraryController) SyncNow(c *gin.Context) {
	lc.scheduler.RunNow()
	respondAccepted(c, "Library sync started", nil)
}

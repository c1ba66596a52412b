package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// SaveSourceRequest is the body of POST /api/sources.
type SaveSourceRequest struct {
	Name           string               `json:"name" binding:"required"`
	OldName        string               `json:"old_name"`
	Kind           entities.StorageKind `json:"kind" binding:"required"`
	Credentials    json.RawMessage      `json:"credentials" binding:"required"`
	Secret         string               `json:"secret"`
	StoreInManager bool                 `json:"store_in_manager"`
}

// SetActiveRequest is the body of PUT /api/sources/active.
type SetActiveRequest struct {
	Kind entities.StorageKind `json:"kind" binding:"required"`
	Name string               `json:"name"`
	// Select also makes kind the current storage.
	Select bool `json:"select"`
}

// ActiveSourcesResponse lists the active source of every kind.
type ActiveSourcesResponse struct {
	Current entities.StorageKind            `json:"current"`
	Active  map[entities.StorageKind]string `json:"active"`
}

type SourcesController struct {
	service  *storagesource.Service
	registry *storagesource.Registry
}

func NewSourcesController(service *storagesource.Service, registry *storagesource.Registry) *SourcesController {
	return &SourcesController{service: service, registry: registry}
}

// List returns source summaries, optionally filtered by kind.
// GET /api/sources?kind=webdav
func (sc *SourcesController) List(c *gin.Context) {
	kind, ok := parseKindQuery(c, "kind")
	if !ok {
		return
	}
	sources, err := sc.service.ListStorageSources(c.Request.Context(), kind)
	if err != nil {
		respondStorageError(c, err, "list storage sources")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// Save creates, updates or renames a source.
// POST /api/sources
func (sc *SourcesController) Save(c *gin.Context) {
	var req SaveSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	creds, err := storagesource.ParseCredentials(req.Credentials)
	if err != nil {
		respondStorageError(c, err, "parse credentials")
		return
	}

	result, err := sc.service.SaveStorageSource(c.Request.Context(), storagesource.SaveRequest{
		Name:           req.Name,
		OldName:        req.OldName,
		Kind:           req.Kind,
		Credentials:    creds,
		Secret:         req.Secret,
		StoreInManager: req.StoreInManager,
	})
	if err != nil {
		respondStorageError(c, err, "save storage source")
		return
	}
	respondCreated(c, result)
}

// Delete removes a source.
// DELETE /api/sources/:name
func (sc *SourcesController) Delete(c *gin.Context) {
	name := c.Param("name")
	if err := sc.service.DeleteStorageSource(c.Request.Context(), name); err != nil {
		respondStorageError(c, err, "delete storage source")
		return
	}
	respondSuccess(c, "Storage source deleted")
}

// Active returns the active pointers and the current storage kind.
// GET /api/sources/active
func (sc *SourcesController) Active(c *gin.Context) {
	c.JSON(http.StatusOK, sc.activeResponse())
}

// SetActive points a kind at a source and optionally selects the kind.
// PUT /api/sources/active
func (sc *SourcesController) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !req.Kind.Valid() {
		respondBadRequest(c, "invalid kind")
		return
	}

	ctx := c.Request.Context()
	if req.Kind != entities.StorageKindBrowser {
		if req.Name != "" && !storagesource.IsDefaultSource(req.Name) {
			summary, err := sc.service.GetStorageSource(ctx, req.Name)
			if err != nil {
				respondStorageError(c, err, "get storage source")
				return
			}
			if summary.Kind != req.Kind {
				respondBadRequest(c, "storage source "+req.Name+" is not a "+string(req.Kind)+" source")
				return
			}
		}
		if err := sc.registry.SetActiveSource(req.Name, req.Kind); err != nil {
			respondStorageError(c, err, "set active source")
			return
		}
	}

	if req.Select || req.Kind == entities.StorageKindBrowser {
		if err := sc.registry.SetCurrentKind(req.Kind); err != nil {
			respondStorageError(c, err, "set current storage")
			return
		}
	}

	c.JSON(http.StatusOK, sc.activeResponse())
}

func (sc *SourcesController) activeResponse() ActiveSourcesResponse {
	active := make(map[entities.StorageKind]string, len(entities.SourceKinds))
	for _, kind := range entities.SourceKinds {
		active[kind] = sc.registry.ActiveSource(kind)
	}
	return ActiveSourcesResponse{Current: sc.registry.CurrentKind(), Active: active}
}

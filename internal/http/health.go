package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarysync/internal/database"
	"github.com/mrlokans/librarysync/internal/entities"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Storage string            `json:"storage,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// KindSelection reports the currently selected storage kind.
type KindSelection interface {
	CurrentKind() entities.StorageKind
}

type HealthController struct {
	db        *database.Database
	selection KindSelection
	version   string
}

func NewHealthController(db *database.Database, selection KindSelection, version string) *HealthController {
	return &HealthController{
		db:        db,
		selection: selection,
		version:   version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		sqlDB, err := h.db.DB.DB()
		if err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}
	if h.selection != nil {
		health.Storage = string(h.selection.CurrentKind())
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

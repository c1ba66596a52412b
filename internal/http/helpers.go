package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarysync/internal/entities"
	"github.com/mrlokans/librarysync/internal/logging"
	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storagesource"
)

// SecretHeader carries the password that unlocks an encrypted storage source.
const SecretHeader = "X-Storage-Secret"

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"` // machine-readable error code
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	CodeConfiguration      = "configuration"
	CodeNotFound           = "not_found"
	CodeUnlockFailed       = "unlock_failed"
	CodeWrongSecret        = "wrong_secret"
	CodeBackendUnavailable = "backend_unavailable"
)

// --- Error Response Helpers ---

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	logging.Error("internal error", logging.String("context", context), logging.Err(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondStorageError maps storage source and replication errors to a
// status code.
func respondStorageError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, storagesource.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, storagesource.ErrConfiguration):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeConfiguration})
	case storagesource.IsAuthenticationError(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "wrong storage secret", Code: CodeWrongSecret})
	case errors.Is(err, storagesource.ErrUnlockFailed):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: CodeUnlockFailed})
	case replication.IsBackendUnavailable(err):
		logging.Warn("storage backend unavailable", logging.String("context", context), logging.Err(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: CodeBackendUnavailable})
	default:
		respondInternalError(c, err, context)
	}
}

// --- Success Response Helpers ---

func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// respondAccepted sends a 202 Accepted response (for async operations).
func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// --- Parameter Parsing ---

// parseKindParam extracts a storage kind from URL parameters.
// Responds with a 400 error and returns false when it is unknown.
func parseKindParam(c *gin.Context, paramName string) (entities.StorageKind, bool) {
	kind := entities.StorageKind(c.Param(paramName))
	if !kind.Valid() {
		respondBadRequest(c, "invalid "+paramName)
		return "", false
	}
	return kind, true
}

// parseKindQuery extracts an optional storage kind from query parameters.
func parseKindQuery(c *gin.Context, paramName string) (entities.StorageKind, bool) {
	value := c.Query(paramName)
	if value == "" {
		return "", true
	}
	kind := entities.StorageKind(value)
	if !kind.Valid() {
		respondBadRequest(c, "invalid "+paramName)
		return "", false
	}
	return kind, true
}

// SecretMiddleware moves the unlock secret header into the request context.
func SecretMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader(SecretHeader); secret != "" {
			c.Request = c.Request.WithContext(storagesource.WithSecret(c.Request.Context(), secret))
		}
		c.Next()
	}
}

// Package api wires Icepeak's REST surface onto a Gin router: path-addressed
// GET/PUT/DELETE against the coordinator, plus health and metrics.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"icepeak/internal/auth"
	"icepeak/internal/coordinator"
	"icepeak/internal/metrics"
	"icepeak/internal/store"
	"icepeak/internal/value"
)

// Handler holds the dependencies injected from cmd/icepeakd.
type Handler struct {
	coord *coordinator.Coordinator
	auth  *auth.Validator
}

// NewHandler constructs a Handler.
func NewHandler(coord *coordinator.Coordinator, validator *auth.Validator) *Handler {
	return &Handler{coord: coord, auth: validator}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/*path", h.Get)
	v1.PUT("/*path", h.Put)
	v1.DELETE("/*path", h.Delete)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Get handles GET /v1/*path.
func (h *Handler) Get(c *gin.Context) {
	path := parsePath(c.Param("path"))
	if err := h.authorize(c, path); err != nil {
		return
	}

	v, ok := h.coord.Get(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	data, err := value.Encode(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// Put handles PUT /v1/*path. The request body is the raw JSON value to
// store at path.
func (h *Handler) Put(c *gin.Context) {
	path := parsePath(c.Param("path"))
	if err := h.authorize(c, path); err != nil {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := value.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}

	if err := h.coord.Modify(c.Request.Context(), store.Put(path, v)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// Delete handles DELETE /v1/*path.
func (h *Handler) Delete(c *gin.Context) {
	path := parsePath(c.Param("path"))
	if err := h.authorize(c, path); err != nil {
		return
	}

	if err := h.coord.Modify(c.Request.Context(), store.Delete(path)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) authorize(c *gin.Context, path value.Path) error {
	token := bearerToken(c.GetHeader("Authorization"))
	if err := h.auth.Authorize(token, path); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return err
	}
	return nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

// parsePath converts a Gin wildcard match like "/a/b/c" (or "/") into a
// value.Path, stripping leading and trailing slashes. An empty segment
// between two slashes ("a//b") is kept as "".
func parsePath(raw string) value.Path {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return value.Path{}
	}
	return value.Path(strings.Split(trimmed, "/"))
}

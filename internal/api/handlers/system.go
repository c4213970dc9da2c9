package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepass/internal/queue"
	"github.com/your-org/facepass/internal/search"
	"github.com/your-org/facepass/internal/storage"
)

// SessionResetter clears per-session pipeline state.
type SessionResetter interface {
	RequestReset() int
	Count() int
}

type SystemHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
	search   *search.Service
	sessions SessionResetter
	version  string
}

func NewSystemHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer, search *search.Service, sessions SessionResetter, version string) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, producer: producer, search: search, sessions: sessions, version: version}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.minio.Ping(ctx); err != nil {
		checks["minio"] = err.Error()
		healthy = false
	} else {
		checks["minio"] = "ok"
	}

	if err := h.producer.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

func (h *SystemHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":         h.version,
		"index_size":      h.search.IndexSize(),
		"active_sessions": h.sessions.Count(),
	})
}

// Reset reloads the search index from the database and flags every live
// session to clear its pipeline state before its next frame.
func (h *SystemHandler) Reset(c *gin.Context) {
	if err := h.search.Reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	n := h.sessions.RequestReset()
	c.JSON(http.StatusOK, gin.H{
		"status":         "reset",
		"index_size":     h.search.IndexSize(),
		"sessions_reset": n,
	})
}

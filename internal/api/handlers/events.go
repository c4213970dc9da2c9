package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepass/internal/storage"
	"github.com/your-org/facepass/pkg/dto"
)

// EventHandler serves recognition event history and snapshots.
type EventHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewEventHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *EventHandler {
	return &EventHandler{db: db, minio: minio}
}

// List returns recent recognition events, optionally filtered by session
// and event type.
func (h *EventHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.db.ListEvents(c.Request.Context(),
		c.Query("session_id"), c.Query("type"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.WSEvent, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.WSEvent{
			Type:        string(ev.Type),
			ID:          ev.ID,
			SessionID:   ev.SessionID,
			TrackID:     ev.TrackID,
			StudentID:   ev.StudentID,
			Confidence:  ev.Confidence,
			BBox:        ev.BBox,
			SnapshotKey: ev.SnapshotKey,
			Timestamp:   ev.Timestamp,
		})
	}

	c.JSON(http.StatusOK, dto.EventListResponse{Events: resp, Total: len(resp)})
}

// Snapshot streams a stored unknown-face snapshot.
func (h *EventHandler) Snapshot(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key required"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

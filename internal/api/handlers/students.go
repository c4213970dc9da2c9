package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facepass/internal/search"
	"github.com/your-org/facepass/internal/storage"
	"github.com/your-org/facepass/internal/vision"
	"github.com/your-org/facepass/pkg/dto"
)

// StudentHandler manages the enrolled face gallery.
type StudentHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	search   *search.Service
	sessions SessionResetter
	// EmbedFn extracts a face embedding from image bytes.
	EmbedFn func(imageData []byte) ([]float32, float32, error)
}

func NewStudentHandler(db *storage.PostgresStore, minio *storage.MinIOStore, search *search.Service, sessions SessionResetter) *StudentHandler {
	return &StudentHandler{db: db, minio: minio, search: search, sessions: sessions}
}

// reloadGallery rebuilds the search index and clears live pipeline state
// so identity locks built against the old gallery do not survive it.
func (h *StudentHandler) reloadGallery(c *gin.Context) {
	if err := h.search.Reload(c.Request.Context()); err != nil {
		slog.Warn("reload search index", "error", err)
	}
	if h.sessions != nil {
		h.sessions.RequestReset()
	}
}

func studentParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return 0, false
	}
	return id, true
}

// Enroll accepts a multipart image upload, extracts the embedding and
// adds it to the student's gallery.
func (h *StudentHandler) Enroll(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision models not initialized"})
		return
	}

	embedding, quality, err := h.EmbedFn(imageData)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in image"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	// Store the source image for audit
	sourceKey := fmt.Sprintf("faces/%d/%s_%s", studentID, uuid.New().String(), header.Filename)
	if err := h.minio.PutObject(c.Request.Context(), sourceKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	fe, err := h.db.AddFaceEmbedding(c.Request.Context(), studentID, embedding, quality, sourceKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reloadGallery(c)

	c.JSON(http.StatusCreated, dto.FaceResponse{
		ID:        fe.ID,
		StudentID: fe.StudentID,
		Quality:   fe.Quality,
		SourceKey: fe.SourceKey,
		CreatedAt: fe.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// ListFaces returns the student's enrolled faces.
func (h *StudentHandler) ListFaces(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	faces, err := h.db.ListFaceEmbeddings(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.FaceResponse, 0, len(faces))
	for _, f := range faces {
		resp = append(resp, dto.FaceResponse{
			ID:        f.ID,
			StudentID: f.StudentID,
			Quality:   f.Quality,
			SourceKey: f.SourceKey,
			CreatedAt: f.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, dto.FaceListResponse{Faces: resp, Total: len(resp)})
}

// DeleteFaces removes every enrolled face for a student, including the
// stored source images.
func (h *StudentHandler) DeleteFaces(c *gin.Context) {
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	deleted, err := h.db.DeleteStudentEmbeddings(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no enrolled faces for student"})
		return
	}

	prefix := fmt.Sprintf("faces/%d/", studentID)
	if keys, err := h.minio.ListObjects(c.Request.Context(), prefix); err == nil && len(keys) > 0 {
		if err := h.minio.DeleteObjects(c.Request.Context(), keys); err != nil {
			slog.Warn("delete source images", "student", studentID, "error", err)
		}
	}

	h.reloadGallery(c)

	c.JSON(http.StatusOK, dto.DeleteFacesResponse{StudentID: studentID, Deleted: deleted})
}

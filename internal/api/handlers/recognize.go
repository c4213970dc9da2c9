package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facepass/internal/search"
	"github.com/your-org/facepass/internal/vision"
	"github.com/your-org/facepass/pkg/dto"
)

// RecognizeHandler answers one-shot still-image recognition queries.
type RecognizeHandler struct {
	search    *search.Service
	threshold float64
	// EmbedFn extracts a face embedding from image bytes.
	EmbedFn func(imageData []byte) ([]float32, float32, error)
}

func NewRecognizeHandler(search *search.Service, threshold float64) *RecognizeHandler {
	return &RecognizeHandler{search: search, threshold: threshold}
}

// Recognize extracts the most confident face from an uploaded image and
// returns the closest enrolled student, if any is within the distance
// threshold.
func (h *RecognizeHandler) Recognize(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
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

	embedding, _, err := h.EmbedFn(imageData)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in image"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	match, err := h.search.Search(c.Request.Context(), embedding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if match == nil || float64(match.Distance) > h.threshold {
		c.JSON(http.StatusOK, dto.RecognizeResponse{Matched: false})
		return
	}

	c.JSON(http.StatusOK, dto.RecognizeResponse{
		Matched:   true,
		StudentID: &match.StudentID,
		Distance:  &match.Distance,
	})
}

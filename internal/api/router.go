package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facepass/internal/api/handlers"
	"github.com/your-org/facepass/internal/api/ws"
	"github.com/your-org/facepass/internal/auth"
	"github.com/your-org/facepass/internal/queue"
	"github.com/your-org/facepass/internal/search"
	"github.com/your-org/facepass/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	Version  string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Search   *search.Service
	Hub      *ws.Hub
	Sessions *ws.SessionManager
	// EmbedFn extracts a face embedding from image bytes.
	EmbedFn func(imageData []byte) ([]float32, float32, error)
	// RecognizeThreshold is the cosine-distance ceiling for one-shot matches.
	RecognizeThreshold float64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.Search, cfg.Sessions, cfg.Version)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/info", systemH.Info)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSockets: camera frame streams and the event dashboard
	v1.GET("/ws/frames", cfg.Sessions.HandleFrames)
	v1.GET("/ws/events", cfg.Hub.HandleWS)

	// Enrollment
	studentH := handlers.NewStudentHandler(cfg.DB, cfg.MinIO, cfg.Search, cfg.Sessions)
	studentH.EmbedFn = cfg.EmbedFn
	v1.POST("/students/:id/faces", studentH.Enroll)
	v1.GET("/students/:id/faces", studentH.ListFaces)
	v1.DELETE("/students/:id/faces", studentH.DeleteFaces)

	// One-shot recognition
	recognizeH := handlers.NewRecognizeHandler(cfg.Search, cfg.RecognizeThreshold)
	recognizeH.EmbedFn = cfg.EmbedFn
	v1.POST("/recognize", recognizeH.Recognize)

	// Session state reset (reload gallery, clear pipelines)
	v1.POST("/reset", systemH.Reset)

	// Event history
	eventH := handlers.NewEventHandler(cfg.DB, cfg.MinIO)
	v1.GET("/events", eventH.List)
	v1.GET("/events/snapshot", eventH.Snapshot)

	return r
}

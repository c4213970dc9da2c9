package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facepass/internal/api"
	"github.com/your-org/facepass/internal/api/ws"
	"github.com/your-org/facepass/internal/attendance"
	"github.com/your-org/facepass/internal/config"
	"github.com/your-org/facepass/internal/models"
	"github.com/your-org/facepass/internal/observability"
	"github.com/your-org/facepass/internal/queue"
	"github.com/your-org/facepass/internal/search"
	"github.com/your-org/facepass/internal/storage"
	"github.com/your-org/facepass/internal/vision"
	"github.com/your-org/facepass/pkg/dto"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facepass API service", "version", version, "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// Identity search: pgvector primary, in-memory fallback
	searchSvc := search.NewService(db)
	if err := searchSvc.Reload(context.Background()); err != nil {
		slog.Warn("initial gallery load", "error", err)
	}

	// Attendance backend; a nil notifier disables marking entirely
	var notifier vision.Notifier
	if client := attendance.NewClient(cfg.Attendance); client.Enabled() {
		notifier = client
	} else {
		slog.Info("attendance backend not configured, marking disabled")
	}

	// Load ONNX models
	ort.SetSharedLibraryPath(getONNXLibPath())
	visionModels, err := vision.NewModels(cfg.Vision, cfg.Recognition.CropPadding)
	if err != nil {
		slog.Error("load vision models", "error", err)
		os.Exit(1)
	}
	defer visionModels.Close()
	defer ort.DestroyEnvironment()

	// Dashboard WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Per-session frame pipelines
	sessions := ws.NewSessionManager(func(sessionID string) *vision.Pipeline {
		return vision.NewPipeline(sessionID, vision.PipelineDeps{
			Detector: visionModels.Detector,
			Embedder: visionModels.Embedder,
			Pose:     visionModels.PoseEstimator(),
			Searcher: searchSvc,
			Notifier: notifier,
			Producer: producer,
			Objects:  minioStore,
		}, vision.PipelineConfig{
			CropPadding:   cfg.Recognition.CropPadding,
			MaxMisses:     cfg.Tracking.MaxMisses,
			MinIoU:        float32(cfg.Tracking.MinIoU),
			CacheCapacity: cfg.Recognition.CacheCapacity,
			Resolver: vision.ResolverConfig{
				SimThreshold:  cfg.Recognition.SimThreshold,
				EmbedInterval: cfg.Recognition.EmbedInterval,
				HistoryWindow: cfg.Recognition.HistoryWindow,
			},
			Engagement: vision.NewEngagementClassifier(
				cfg.Behavior.YawThreshold, cfg.Behavior.PitchThreshold),
		})
	})

	// Event consumer: persist events and feed the dashboard
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		var event models.RecognitionEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return err
		}

		if err := db.CreateEvent(ctx, &event); err != nil {
			slog.Error("store event", "error", err)
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:        string(event.Type),
			ID:          event.ID,
			SessionID:   event.SessionID,
			TrackID:     event.TrackID,
			StudentID:   event.StudentID,
			Confidence:  event.Confidence,
			BBox:        event.BBox,
			SnapshotKey: event.SnapshotKey,
			Timestamp:   event.Timestamp,
		})

		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:             cfg.Server.APIKey,
		Version:            version,
		DB:                 db,
		MinIO:              minioStore,
		Producer:           producer,
		Search:             searchSvc,
		Hub:                hub,
		Sessions:           sessions,
		EmbedFn:            visionModels.EmbedImage,
		RecognizeThreshold: cfg.Recognition.SimThreshold,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

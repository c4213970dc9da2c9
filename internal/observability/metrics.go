package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"session_id"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because a previous frame was still in flight",
	}, []string{"session_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"session_id"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched against enrolled identities",
	}, []string{"session_id"})

	UnknownFaces = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "unknown_faces_total",
		Help:      "Unknown-face events emitted (one per track)",
	})

	IdentityLocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "identity_locks_total",
		Help:      "Identity locks acquired",
	})

	IdentityUnlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "identity_unlocks_total",
		Help:      "Identity locks revoked after a failed re-validation",
	})

	AttendanceMarked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "attendance_marked_total",
		Help:      "Attendance notifications accepted by the backend",
	})

	AttendanceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facepass",
		Name:      "attendance_retries_total",
		Help:      "Attendance notifications that failed and will be retried",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facepass",
		Name:      "inference_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facepass",
		Name:      "active_sessions",
		Help:      "Number of currently active frame-streaming sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facepass",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facepass",
		Name:      "ws_connections",
		Help:      "Number of active dashboard WebSocket connections",
	})
)

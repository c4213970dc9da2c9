package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/facepass/internal/observability"
	"github.com/your-org/facepass/internal/vision"
	"github.com/your-org/facepass/pkg/dto"
)

// PipelineFactory builds a fresh pipeline for a new frame session.
type PipelineFactory func(sessionID string) *vision.Pipeline

// Session is one live camera connection. The reader goroutine only
// receives; the processor goroutine owns the pipeline and is the sole
// socket writer.
type Session struct {
	ID       string
	conn     *websocket.Conn
	pipeline *vision.Pipeline

	frames chan []byte
	reset  atomic.Bool
}

// SessionManager tracks live frame sessions and builds their pipelines.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  PipelineFactory
}

func NewSessionManager(factory PipelineFactory) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// RequestReset flags every live session to clear its pipeline state
// before its next frame. Safe to call from any goroutine.
func (m *SessionManager) RequestReset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.reset.Store(true)
	}
	return len(m.sessions)
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleFrames upgrades a camera connection and runs its session until
// the socket closes.
func (m *SessionManager) HandleFrames(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("frame ws upgrade failed", "error", err)
		return
	}

	s := &Session{
		ID:       uuid.New().String(),
		conn:     conn,
		frames:   make(chan []byte, 1),
	}
	s.pipeline = m.factory(s.ID)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	observability.ActiveSessions.Inc()
	slog.Info("frame session started", "session", s.ID, "remote", conn.RemoteAddr())

	go s.readLoop()
	s.processLoop(c.Request.Context())

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	observability.ActiveSessions.Dec()
	slog.Info("frame session ended", "session", s.ID)
}

// readLoop receives frames and control messages. When the processor is
// busy the pending frame is dropped so the session always works on the
// freshest image.
func (s *Session) readLoop() {
	defer close(s.frames)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			select {
			case s.frames <- data:
			default:
				observability.FramesDropped.WithLabelValues(s.ID).Inc()
			}

		case websocket.TextMessage:
			var ctl dto.ControlMessage
			if err := json.Unmarshal(data, &ctl); err != nil {
				slog.Warn("bad control message", "session", s.ID, "error", err)
				continue
			}
			if ctl.Action == "reset" {
				s.reset.Store(true)
			}
		}
	}
}

// processLoop decodes and processes frames one at a time and writes the
// per-frame reply. Exits when the reader closes the frame channel.
func (s *Session) processLoop(ctx context.Context) {
	defer s.conn.Close()

	frameID := 0
	for data := range s.frames {
		if s.reset.Swap(false) {
			s.pipeline.Reset()
			frameID = 0
		}
		frameID++

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Warn("decode frame", "session", s.ID, "error", err)
			if werr := s.conn.WriteJSON(dto.FrameResponse{FrameID: frameID, Faces: []dto.FaceRecord{}}); werr != nil {
				return
			}
			continue
		}

		records := s.pipeline.Process(ctx, img)
		if records == nil {
			records = []dto.FaceRecord{}
		}

		if err := s.conn.WriteJSON(dto.FrameResponse{FrameID: frameID, Faces: records}); err != nil {
			return
		}
	}
}

package dto

// FrameResponse is the per-frame reply on the frame-streaming WebSocket:
// one row per tracked face currently backed by a detection.
type FrameResponse struct {
	FrameID int          `json:"frame_id"`
	Faces   []FaceRecord `json:"faces"`
}

// ControlMessage is an inbound text message on the frame socket.
type ControlMessage struct {
	Action string `json:"action"` // "reset"
}

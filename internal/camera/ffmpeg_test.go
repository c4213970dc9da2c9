package camera

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegFrame(payload ...byte) []byte {
	frame := append([]byte{0xFF, 0xD8}, payload...)
	return append(frame, 0xFF, 0xD9)
}

func TestSplitFramesConcatenated(t *testing.T) {
	a := jpegFrame(0x01, 0x02)
	b := jpegFrame(0x03)
	// Leading junk before the first SOI marker must be skipped.
	stream := append([]byte{0x00, 0x11}, append(a, b...)...)

	var got [][]byte
	err := splitFrames(context.Background(), bytes.NewReader(stream), func(f []byte) error {
		got = append(got, append([]byte(nil), f...))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.Equal(t, b, got[1])
}

func TestSplitFramesTruncatedTail(t *testing.T) {
	// A stream cut off mid-frame after producing frames ends normally.
	stream := append(jpegFrame(0x01), 0xFF, 0xD8, 0x02)

	frames := 0
	err := splitFrames(context.Background(), bytes.NewReader(stream), func([]byte) error {
		frames++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, frames)
}

func TestSplitFramesStopsOnSendError(t *testing.T) {
	stream := append(jpegFrame(0x01), jpegFrame(0x02)...)

	sent := 0
	err := splitFrames(context.Background(), bytes.NewReader(stream), func([]byte) error {
		sent++
		return errors.New("socket closed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, sent, "capture stops at the first delivery failure")
}

func TestSplitFramesContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := splitFrames(ctx, bytes.NewReader(jpegFrame(0x01)), func([]byte) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCaptureArgsPerProtocol(t *testing.T) {
	rtsp := captureArgs(Options{URL: "rtsp://cam/stream", FPS: 10, Width: 1280})
	assert.Contains(t, rtsp, "-rtsp_transport")
	assert.Contains(t, rtsp, "fps=10,scale=1280:-1")

	http := captureArgs(Options{URL: "https://cam/stream.m3u8", FPS: 5, Width: 640})
	assert.Contains(t, http, "-reconnect")
	assert.NotContains(t, http, "-rtsp_transport")

	file := captureArgs(Options{URL: "/tmp/video.mp4", FPS: 5, Width: 640})
	assert.NotContains(t, file, "-reconnect")
	assert.NotContains(t, file, "-rtsp_transport")
}

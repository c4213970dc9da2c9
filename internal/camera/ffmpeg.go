// Package camera captures JPEG frames from local video sources for the
// frame-streaming client. ffmpeg does the decoding; this package only
// spawns it and splits its MJPEG output.
package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// FrameFunc receives one captured JPEG frame. Returning an error stops
// the capture; for a client pushing frames over a socket, a delivery
// failure means the session is gone.
type FrameFunc func(frame []byte) error

// Options configure an ffmpeg capture.
type Options struct {
	// URL is a video file path or an RTSP/HTTP(S) stream URL.
	URL string
	// FPS is the output frame rate.
	FPS int
	// Width scales output frames to this width, aspect preserved.
	Width int
}

const (
	maxFrameBytes = 10 << 20
	// startupGrace bounds how long to wait for the first frame while
	// ffmpeg is still connecting to the source.
	startupGrace = 5 * time.Second
)

// Stream spawns ffmpeg against the source and hands every captured JPEG
// frame to send. It blocks until the context is cancelled, the source
// ends, or send fails.
func Stream(ctx context.Context, opts Options, send FrameFunc) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", captureArgs(opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			slog.Warn("ffmpeg", "line", sc.Text())
		}
	}()

	if err := splitFrames(ctx, stdout, send); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = cmd.Wait()
		return err
	}
	return cmd.Wait()
}

// captureArgs builds the ffmpeg invocation: decode the source, resample
// to the requested rate and width, emit concatenated JPEGs on stdout.
func captureArgs(o Options) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(o.URL, "rtsp://"), strings.HasPrefix(o.URL, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000", // microseconds
			"-timeout", "5000000",
		)
	case strings.HasPrefix(o.URL, "http://"), strings.HasPrefix(o.URL, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	return append(args,
		"-i", o.URL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", o.FPS, o.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// splitFrames cuts the concatenated-JPEG stream on SOI/EOI markers and
// delivers each complete frame. Initial EOFs are tolerated within the
// startup grace; once frames have flowed, EOF is a normal end of stream.
func splitFrames(ctx context.Context, r io.Reader, send FrameFunc) error {
	br := bufio.NewReaderSize(r, 512*1024)
	deadline := time.Now().Add(startupGrace)
	frames := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := seekSOI(br); err != nil {
			if err == io.EOF {
				if frames > 0 {
					return nil
				}
				if time.Now().Before(deadline) {
					time.Sleep(100 * time.Millisecond)
					continue
				}
				return errors.New("no frames from ffmpeg before startup deadline")
			}
			return err
		}

		frame, err := readToEOI(br)
		if err != nil {
			if err == io.EOF && frames > 0 {
				return nil // stream ended mid-frame
			}
			return err
		}

		frames++
		if err := send(frame); err != nil {
			return fmt.Errorf("deliver frame: %w", err)
		}
	}
}

// seekSOI discards bytes up to and including the next FF D8 marker.
func seekSOI(br *bufio.Reader) error {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		if b, err = br.ReadByte(); err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

// readToEOI collects one frame up to and including the FF D9 marker.
func readToEOI(br *bufio.Reader) ([]byte, error) {
	frame := []byte{0xFF, 0xD8}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)
		if len(frame) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
		}
		if b != 0xFF {
			continue
		}
		next, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, next)
		if next == 0xD9 {
			return frame, nil
		}
	}
}

// Command camera streams JPEG frames from a directory, a video file or a
// live stream to the facepass frame WebSocket and prints the per-frame
// recognition results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/facepass/internal/camera"
)

func main() {
	server := flag.String("server", "ws://localhost:8000/v1/ws/frames", "frame WebSocket endpoint")
	apiKey := flag.String("api-key", "", "API key (X-API-Key header)")
	dir := flag.String("dir", "", "directory of JPEG frames to send")
	url := flag.String("url", "", "video stream URL (file, RTSP or HTTP; requires ffmpeg)")
	youtube := flag.Bool("youtube", false, "resolve -url through yt-dlp first")
	fps := flag.Int("fps", 10, "frames per second")
	width := flag.Int("width", 1280, "scale frames to this width (stream mode)")
	flag.Parse()

	if (*dir == "") == (*url == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -dir or -url is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	header := http.Header{}
	if *apiKey != "" {
		header.Set("X-API-Key", *apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *server, header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", *server, err)
		os.Exit(1)
	}
	defer conn.Close()

	// Print recognition results as they arrive.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			fmt.Println(string(msg))
		}
	}()

	sendFrame := func(frame []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	}

	if *dir != "" {
		err = streamDirectory(ctx, *dir, *fps, sendFrame)
	} else {
		streamURL := *url
		if *youtube {
			streamURL, err = camera.ResolveYouTubeURL(ctx, streamURL)
			if err != nil {
				fmt.Fprintf(os.Stderr, "resolve youtube url: %v\n", err)
				os.Exit(1)
			}
		}
		err = camera.Stream(ctx, camera.Options{URL: streamURL, FPS: *fps, Width: *width}, sendFrame)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "stream: %v\n", err)
		os.Exit(1)
	}

	// Let in-flight responses drain before closing.
	time.Sleep(500 * time.Millisecond)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// streamDirectory sends the directory's JPEG files in name order at the
// requested frame rate.
func streamDirectory(ctx context.Context, dir string, fps int, send func([]byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if !e.IsDir() && (strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg")) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return fmt.Errorf("no JPEG files in %s", dir)
	}

	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, path := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("read frame", "path", path, "error", err)
			continue
		}
		if err := send(data); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
	}

	return nil
}

// Package attendance posts recognized students to the school backend's
// attendance API.
package attendance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/facepass/internal/config"
	"github.com/your-org/facepass/internal/vision"
)

// Client implements vision.Notifier against the attendance REST API.
// A zero-value base URL disables marking entirely.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.AttendanceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a backend is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// Notify marks attendance for one student. The backend answers 409 when
// attendance is already marked for the current period; that is a success
// for dedup purposes, not an error.
func (c *Client) Notify(ctx context.Context, studentID string) vision.Outcome {
	if !c.Enabled() {
		return vision.OutcomeRejected
	}

	url := fmt.Sprintf("%s/api/attendance/mark/%s", c.baseURL, studentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		slog.Error("build attendance request", "student", studentID, "error", err)
		return vision.OutcomeError
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("attendance request failed", "student", studentID, "error", err)
		return vision.OutcomeError
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return vision.OutcomeAccepted
	case resp.StatusCode == http.StatusConflict:
		return vision.OutcomeAlreadyRecorded
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		slog.Warn("attendance rejected", "student", studentID, "status", resp.StatusCode)
		return vision.OutcomeRejected
	default:
		slog.Warn("attendance backend error", "student", studentID, "status", resp.StatusCode)
		return vision.OutcomeError
	}
}

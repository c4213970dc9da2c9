package attendance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/facepass/internal/config"
	"github.com/your-org/facepass/internal/vision"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.AttendanceConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
}

func TestNotifyOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   vision.Outcome
	}{
		{"accepted", http.StatusOK, vision.OutcomeAccepted},
		{"created", http.StatusCreated, vision.OutcomeAccepted},
		{"already marked", http.StatusConflict, vision.OutcomeAlreadyRecorded},
		{"unknown student", http.StatusNotFound, vision.OutcomeRejected},
		{"validation failure", http.StatusUnprocessableEntity, vision.OutcomeRejected},
		{"backend error", http.StatusInternalServerError, vision.OutcomeError},
		{"bad gateway", http.StatusBadGateway, vision.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/attendance/mark/42", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			got := newTestClient(srv.URL).Notify(context.Background(), "42")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.AttendanceConfig{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	})

	got := c.Notify(context.Background(), "42")
	assert.Equal(t, vision.OutcomeError, got, "timeouts must surface as retryable errors")
}

func TestNotifyUnreachableBackend(t *testing.T) {
	c := NewClient(config.AttendanceConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	})

	got := c.Notify(context.Background(), "42")
	assert.Equal(t, vision.OutcomeError, got)
}

func TestClientDisabled(t *testing.T) {
	c := NewClient(config.AttendanceConfig{})
	assert.False(t, c.Enabled())
	assert.Equal(t, vision.OutcomeRejected, c.Notify(context.Background(), "42"))
}

func TestTrailingSlashTrimmed(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	newTestClient(srv.URL + "/").Notify(context.Background(), "7")
	assert.Equal(t, "/api/attendance/mark/7", gotPath)
}

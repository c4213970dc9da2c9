package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngagementClassify(t *testing.T) {
	c := NewEngagementClassifier(20.0, -10.0)

	tests := []struct {
		name       string
		pitch, yaw float64
		want       Engagement
	}{
		{"facing forward", 0, 0, EngagementHigh},
		{"slight turn", 5, 15, EngagementHigh},
		{"moderate turn", 0, 25, EngagementMedium},
		{"moderate turn left", 0, -25, EngagementMedium},
		{"strong turn", 0, 40, EngagementLow},
		{"looking down slightly", -12, 0, EngagementMedium},
		{"looking down", -20, 0, EngagementLow},
		{"looking up", 15, 0, EngagementHigh},
		{"down and turned", -12, 25, EngagementMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.pitch, tt.yaw))
		})
	}
}

func TestEngagementBoundaries(t *testing.T) {
	c := NewEngagementClassifier(20.0, -10.0)

	// Thresholds are exclusive: exactly at the limit stays in the
	// higher band.
	assert.Equal(t, EngagementHigh, c.Classify(0, 20))
	assert.Equal(t, EngagementMedium, c.Classify(0, 30))
	assert.Equal(t, EngagementHigh, c.Classify(-10, 0))
	assert.Equal(t, EngagementMedium, c.Classify(-15, 0))
}

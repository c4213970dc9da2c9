package vision

// Engagement is the coarse attention level derived from head pose.
type Engagement string

const (
	EngagementHigh   Engagement = "high"
	EngagementMedium Engagement = "medium"
	EngagementLow    Engagement = "low"
)

// EngagementClassifier maps head-pose angles to an engagement level.
// Yaw measures looking away (either side); pitch below the threshold
// means looking down. The medium band sits at 1.5x each threshold.
type EngagementClassifier struct {
	yawHigh     float64
	yawMedium   float64
	pitchHigh   float64
	pitchMedium float64
}

// NewEngagementClassifier builds a classifier from the configured
// yaw threshold (degrees, e.g. 20) and pitch threshold (degrees,
// negative, e.g. -10).
func NewEngagementClassifier(yawThreshold, pitchThreshold float64) *EngagementClassifier {
	return &EngagementClassifier{
		yawHigh:     yawThreshold,
		yawMedium:   yawThreshold * 1.5,
		pitchHigh:   pitchThreshold,
		pitchMedium: pitchThreshold * 1.5,
	}
}

// Classify returns the engagement level for the given pose angles.
func (c *EngagementClassifier) Classify(pitch, yaw float64) Engagement {
	if abs(yaw) > c.yawMedium || pitch < c.pitchMedium {
		return EngagementLow
	}
	if abs(yaw) > c.yawHigh || pitch < c.pitchHigh {
		return EngagementMedium
	}
	return EngagementHigh
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

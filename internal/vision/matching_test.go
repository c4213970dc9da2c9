package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float32
	}{
		{"identical", Box{0, 0, 10, 10}, Box{0, 0, 10, 10}, 1.0},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 30, 30}, 0.0},
		{"half overlap", Box{0, 0, 10, 10}, Box{5, 0, 15, 10}, 1.0 / 3.0},
		{"contained", Box{0, 0, 10, 10}, Box{2, 2, 8, 8}, 36.0 / 100.0},
		{"touching edge", Box{0, 0, 10, 10}, Box{10, 0, 20, 10}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-4)
			assert.InDelta(t, tt.want, IoU(tt.b, tt.a), 1e-4)
		})
	}
}

func TestIoUDegenerateBoxes(t *testing.T) {
	zero := Box{5, 5, 5, 5}
	assert.Equal(t, float32(0), IoU(zero, zero))
	assert.Equal(t, float32(0), IoU(zero, Box{0, 0, 10, 10}))
}

func tracksAt(boxes ...Box) []*Track {
	tracks := make([]*Track, len(boxes))
	for i, b := range boxes {
		tracks[i] = &Track{ID: int64(i), BBox: b}
	}
	return tracks
}

func TestAssociateEmpty(t *testing.T) {
	assert.Nil(t, Associate(nil, []Box{{0, 0, 10, 10}}, 0))
	assert.Nil(t, Associate(tracksAt(Box{0, 0, 10, 10}), nil, 0))
}

func TestAssociateIdentical(t *testing.T) {
	pairs := Associate(tracksAt(Box{0, 0, 10, 10}), []Box{{0, 0, 10, 10}}, 0.1)
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{Track: 0, Detection: 0}, pairs[0])
}

func TestAssociatePicksBestOverlap(t *testing.T) {
	tracks := tracksAt(
		Box{0, 0, 100, 100},
		Box{200, 0, 300, 100},
	)
	// Detections slightly shifted, listed in swapped order.
	detections := []Box{
		{205, 5, 305, 105},
		{5, 5, 105, 105},
	}

	pairs := Associate(tracks, detections, 0.1)
	require.Len(t, pairs, 2)

	byTrack := map[int]int{}
	for _, p := range pairs {
		byTrack[p.Track] = p.Detection
	}
	assert.Equal(t, 1, byTrack[0])
	assert.Equal(t, 0, byTrack[1])
}

func TestAssociateGateRejectsLowOverlap(t *testing.T) {
	tracks := tracksAt(Box{0, 0, 10, 10})
	// Barely touching: IoU well below the gate.
	detections := []Box{{9, 9, 19, 19}}

	pairs := Associate(tracks, detections, 0.1)
	assert.Empty(t, pairs)

	// Gate disabled: any positive overlap can match.
	pairs = Associate(tracks, detections, 0)
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{Track: 0, Detection: 0}, pairs[0])
}

func TestAssociateTieBreakDeterministic(t *testing.T) {
	// Two detections with identical IoU against one track: the lowest
	// detection index must win, every run.
	track := tracksAt(Box{0, 0, 100, 100})
	detections := []Box{
		{10, 0, 110, 100},
		{0, 10, 100, 110},
	}
	require.InDelta(t, float64(IoU(track[0].BBox, detections[0])),
		float64(IoU(track[0].BBox, detections[1])), 1e-6)

	for i := 0; i < 50; i++ {
		pairs := Associate(track, detections, 0.1)
		require.Len(t, pairs, 1)
		assert.Equal(t, 0, pairs[0].Detection)
	}
}

func TestAssignRectangular(t *testing.T) {
	// More detections than tracks.
	cost := [][]float32{
		{0.9, 0.1, 0.8},
	}
	assert.Equal(t, []int{1}, assign(cost))

	// More tracks than detections: one row stays unassigned.
	cost = [][]float32{
		{0.1},
		{0.2},
	}
	assert.Equal(t, []int{0, -1}, assign(cost))
}

func TestAssignMinimizesTotalCost(t *testing.T) {
	// Greedy row-by-row would pick (0,0) and strand row 1 with 0.9;
	// the optimal assignment is (0,1), (1,0).
	cost := [][]float32{
		{0.1, 0.2},
		{0.15, 0.9},
	}
	assert.Equal(t, []int{1, 0}, assign(cost))
}

func TestAssignAllForbidden(t *testing.T) {
	cost := [][]float32{
		{forbiddenCost, forbiddenCost},
		{forbiddenCost, forbiddenCost},
	}
	assert.Equal(t, []int{-1, -1}, assign(cost))
}

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexEmpty(t *testing.T) {
	idx := NewIndex()
	_, _, found := idx.Nearest([]float32{1, 0, 0})
	assert.False(t, found)
	assert.Equal(t, 0, idx.Len())
}

func TestIndexNearest(t *testing.T) {
	idx := NewIndex()
	idx.Add("a", 7, []float32{1, 0, 0})
	idx.Add("b", 9, []float32{0, 1, 0})
	require.Equal(t, 2, idx.Len())

	studentID, distance, found := idx.Nearest([]float32{0.99, 0.01, 0})
	require.True(t, found)
	assert.Equal(t, int64(7), studentID)
	assert.Less(t, distance, float32(0.05))

	studentID, _, found = idx.Nearest([]float32{0, 1, 0})
	require.True(t, found)
	assert.Equal(t, int64(9), studentID)
}

func TestIndexReplace(t *testing.T) {
	idx := NewIndex()
	idx.Add("a", 7, []float32{1, 0, 0})

	idx.Replace([]Entry{
		{ID: "b", StudentID: 9, Embedding: []float32{0, 1, 0}},
		{ID: "c", StudentID: 11, Embedding: []float32{0, 0, 1}},
	})
	assert.Equal(t, 2, idx.Len())

	studentID, _, found := idx.Nearest([]float32{1, 0, 0})
	require.True(t, found)
	assert.NotEqual(t, int64(7), studentID, "replaced entries must be gone")
}

func TestIndexReplaceEmpty(t *testing.T) {
	idx := NewIndex()
	idx.Add("a", 7, []float32{1, 0, 0})

	idx.Replace(nil)
	assert.Equal(t, 0, idx.Len())
	_, _, found := idx.Nearest([]float32{1, 0, 0})
	assert.False(t, found)
}

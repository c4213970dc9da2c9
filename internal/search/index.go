package search

import (
	"sync"

	"github.com/coder/hnsw"
)

// Index is an in-memory approximate-nearest-neighbour index over the
// enrolled face gallery, keyed by embedding ID. It serves lookups when
// Postgres is unreachable and is rebuilt wholesale on gallery changes.
type Index struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[string]
	students map[string]int64
}

func NewIndex() *Index {
	return &Index{
		graph:    newGraph(),
		students: make(map[string]int64),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	return g
}

// Add inserts one embedding under its ID.
func (i *Index) Add(id string, studentID int64, embedding []float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.graph.Add(hnsw.MakeNode(id, embedding))
	i.students[id] = studentID
}

// Replace swaps the whole index contents atomically.
func (i *Index) Replace(entries []Entry) {
	g := newGraph()
	students := make(map[string]int64, len(entries))
	for _, e := range entries {
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		students[e.ID] = e.StudentID
	}

	i.mu.Lock()
	i.graph = g
	i.students = students
	i.mu.Unlock()
}

// Entry is one gallery embedding for bulk loading.
type Entry struct {
	ID        string
	StudentID int64
	Embedding []float32
}

// Len returns the number of indexed embeddings.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.students)
}

// Nearest returns the closest student and the cosine distance to the
// query. found is false when the index is empty.
func (i *Index) Nearest(embedding []float32) (studentID int64, distance float32, found bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.students) == 0 {
		return 0, 0, false
	}

	neighbors := i.graph.Search(embedding, 1)
	if len(neighbors) == 0 {
		return 0, 0, false
	}

	best := neighbors[0]
	sid, ok := i.students[best.Key]
	if !ok {
		return 0, 0, false
	}
	return sid, hnsw.CosineDistance(embedding, best.Value), true
}

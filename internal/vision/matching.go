package vision

import "math"

// Box is an axis-aligned bounding box in pixel coordinates: x1, y1, x2, y2.
type Box [4]float32

// Width returns x2-x1. Negative for malformed boxes.
func (b Box) Width() float32 { return b[2] - b[0] }

// Height returns y2-y1. Negative for malformed boxes.
func (b Box) Height() float32 { return b[3] - b[1] }

// Pair links a track index to the detection index assigned to it.
type Pair struct {
	Track     int
	Detection int
}

// forbiddenCost marks a track/detection pair the solver must never select.
const forbiddenCost = 1e18

// IoU computes intersection-over-union of two boxes. The epsilon in the
// denominator keeps degenerate boxes from dividing by zero.
func IoU(a, b Box) float32 {
	xA := max32(a[0], b[0])
	yA := max32(a[1], b[1])
	xB := min32(a[2], b[2])
	yB := min32(a[3], b[3])

	inter := max32(0, xB-xA) * max32(0, yB-yA)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])

	return inter / (areaA + areaB - inter + 1e-6)
}

// Associate pairs tracks with detections by minimum total cost, where
// cost(i,j) = 1 - IoU(track i, detection j). Pairs whose IoU falls below
// minIoU are forbidden, so a distant detection spawns a new track instead
// of capturing a stale one. minIoU <= 0 disables the gate.
//
// Tie-breaking is deterministic: rows (tracks) are processed in index
// order and columns (detections) scanned ascending, so among equal-cost
// alternatives the lowest detection index wins.
func Associate(tracks []*Track, detections []Box, minIoU float32) []Pair {
	if len(tracks) == 0 || len(detections) == 0 {
		return nil
	}

	cost := make([][]float32, len(tracks))
	for i, tr := range tracks {
		cost[i] = make([]float32, len(detections))
		for j, det := range detections {
			overlap := IoU(tr.BBox, det)
			if minIoU > 0 && overlap < minIoU {
				cost[i][j] = forbiddenCost
			} else {
				cost[i][j] = 1 - overlap
			}
		}
	}

	assignment := assign(cost)

	pairs := make([]Pair, 0, len(assignment))
	for i, j := range assignment {
		if j >= 0 {
			pairs = append(pairs, Pair{Track: i, Detection: j})
		}
	}
	return pairs
}

// assign solves the rectangular assignment problem for an n×m cost matrix
// using the Jonker-Volgenant variant of the Kuhn-Munkres algorithm (O(n³)).
// It returns assignment[i] = column assigned to row i, or -1 when row i is
// unassigned. Costs >= forbiddenCost are never selected.
func assign(cost [][]float32) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		result := make([]int, n)
		for i := range result {
			result[i] = -1
		}
		return result
	}

	// Pad to a square matrix; padded cells are forbidden so excess rows
	// or columns stay unassigned.
	dim := n
	if m > dim {
		dim = m
	}

	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c[i][j] = float64(cost[i][j])
			} else {
				c[i][j] = forbiddenCost
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	// 1-indexed internally for cleaner index arithmetic.
	u := make([]float64, dim+1)   // row potentials
	v := make([]float64, dim+1)   // column potentials
	p := make([]int, dim+1)       // p[j] = row assigned to column j
	way := make([]int, dim+1)     // previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}

	// Trim to original dimensions and reject forbidden assignments.
	result := make([]int, n)
	for i := 0; i < n; i++ {
		col := rowAssign[i]
		if col < 0 || col >= m || cost[i][col] >= forbiddenCost {
			result[i] = -1
		} else {
			result[i] = col
		}
	}

	return result
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

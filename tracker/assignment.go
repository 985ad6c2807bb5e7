package tracker

import (
	"math"
)

// hungarian solves the square assignment problem for cost, returning for each
// row the assigned column.  It is the O(n^3) shortest augmenting path variant
// using row and column potentials.
func hungarian(cost [][]float64) []int {

	n := len(cost)

	if n == 0 {
		return nil
	}

	inf := math.Inf(1)

	// arrays are 1 indexed with column 0 acting as a virtual source
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {

		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)

		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := 0

			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}

				cur := cost[i0-1][j-1] - u[i0] - v[j]

				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}

				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			for j := 0; j <= n; j++ {
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

		// unwind the augmenting path
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1

			if j0 == 0 {
				break
			}
		}
	}

	rows := make([]int, n)

	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			rows[p[j]-1] = j - 1
		}
	}

	return rows
}

// match is a pair of associated track and detection indexes
type match struct {
	track int
	det   int
}

// linearAssignment matches rows to columns of a rectangular cost matrix
// rejecting any pairing that costs more than thresh.  The matrix is extended
// to (rows+cols) square with dummy entries of thresh/2, so that leaving both
// a row and a column unmatched is preferred over a pairing above thresh.
func linearAssignment(cost [][]float64, rows, cols int,
	thresh float64) (matches []match, unmatchedRows, unmatchedCols []int) {

	if rows == 0 || cols == 0 {
		for i := 0; i < rows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < cols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return
	}

	n := rows + cols
	ext := make([][]float64, n)

	for i := range ext {
		ext[i] = make([]float64, n)

		for j := range ext[i] {
			switch {
			case i < rows && j < cols:
				ext[i][j] = cost[i][j]
			case i >= rows && j >= cols:
				ext[i][j] = 0
			default:
				ext[i][j] = thresh / 2
			}
		}
	}

	assign := hungarian(ext)
	colMatched := make([]bool, cols)

	for i := 0; i < rows; i++ {
		j := assign[i]

		if j < cols && cost[i][j] <= thresh {
			matches = append(matches, match{track: i, det: j})
			colMatched[j] = true
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j := 0; j < cols; j++ {
		if !colMatched[j] {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return
}

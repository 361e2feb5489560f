package scoring

import "math"

// assign solves the rectangular assignment problem for an n×m cost matrix
// with the Kuhn-Munkres algorithm (Jonker-Volgenant potentials). It returns
// assignment[i] = column matched to row i, or -1 when row i stays unmatched
// because there are more rows than columns.
func assign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	if m == 0 {
		for i := range result {
			result[i] = -1
		}
		return result
	}

	// pad to square; padded cells cost more than any real angle
	const padCost = 1e9
	dim := max(n, m)
	c := make([][]float64, dim)
	for i := range dim {
		c[i] = make([]float64, dim)
		for j := range dim {
			if i < n && j < m {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = padCost
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	// 1-indexed; column 0 is virtual
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1) // p[j] = row matched to column j
	way := make([]int, dim+1)
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
		if p[j] > 0 {
			rowAssign[p[j]-1] = j - 1
		}
	}

	for i := range n {
		if col := rowAssign[i]; col >= 0 && col < m {
			result[i] = col
		} else {
			result[i] = -1
		}
	}
	return result
}

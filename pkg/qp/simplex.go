package qp

import "sort"

// projectSimplex replaces y with its Euclidean projection onto
// {x : x >= 0, sum(x) = 1}. scratch must have the same length as y.
func projectSimplex(y, scratch []float64) {
	u := scratch[:len(y)]
	copy(u, y)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var cum, theta float64
	support := 0
	for j, v := range u {
		cum += v
		t := (cum - 1) / float64(j+1)
		if v-t > 0 {
			theta, support = t, j+1
		}
	}
	if support == 1 {
		// Snap to the vertex exactly; y - theta can round below 1.
		top := 0
		for i := range y {
			if y[i] > y[top] {
				top = i
			}
		}
		for i := range y {
			y[i] = 0
		}
		y[top] = 1
		return
	}
	for i, v := range y {
		if v -= theta; v > 0 {
			y[i] = v
		} else {
			y[i] = 0
		}
	}
}

/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import "math"

// singularTolerance is relative to the largest entry of the normal matrix.
const singularTolerance = 1e-12

// fitQuadratic computes the least squares fit y = a*x^2 + b*x + c by solving
// the 3x3 normal equations with partial pivoting. ok is false when the
// system is singular, e.g. fewer than three distinct x values.
func fitQuadratic(xs, ys []float64) (a, b, c float64, ok bool) {
	if len(xs) != len(ys) || len(xs) < 3 {
		return 0, 0, 0, false
	}

	var s [5]float64 // sums of x^0 .. x^4
	var t [3]float64 // sums of y, x*y, x^2*y
	for i, x := range xs {
		p := 1.0
		for k := 0; k < 5; k++ {
			s[k] += p
			if k < 3 {
				t[k] += p * ys[i]
			}
			p *= x
		}
	}

	// rows ordered for unknowns (a, b, c)
	m := [3][4]float64{
		{s[4], s[3], s[2], t[2]},
		{s[3], s[2], s[1], t[1]},
		{s[2], s[1], s[0], t[0]},
	}

	var scale float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			scale = math.Max(scale, math.Abs(m[i][j]))
		}
	}
	if scale == 0 {
		return 0, 0, 0, false
	}

	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) <= singularTolerance*scale {
			return 0, 0, 0, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < 3; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k < 4; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	var coef [3]float64
	for row := 2; row >= 0; row-- {
		sum := m[row][3]
		for k := row + 1; k < 3; k++ {
			sum -= m[row][k] * coef[k]
		}
		coef[row] = sum / m[row][row]
	}

	for _, v := range coef {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, false
		}
	}
	return coef[0], coef[1], coef[2], true
}

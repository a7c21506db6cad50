package picamraw

import "math"

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse computes the inverse of m from its adjugate. ok is false when
// |det| <= eps or the result is not finite.
func (m Mat3) Inverse(eps float64) (inv Mat3, det float64, ok bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	c00 := e*i - f*h
	c01 := -(d*i - f*g)
	c02 := d*h - e*g
	det = a*c00 + b*c01 + c*c02
	if det == 0 || math.Abs(det) <= eps || math.IsNaN(det) || math.IsInf(det, 0) {
		return inv, det, false
	}
	s := 1 / det
	inv = Mat3{
		c00 * s, -(b*i - c*h) * s, (b*f - c*e) * s,
		c01 * s, (a*i - c*g) * s, -(a*f - c*d) * s,
		c02 * s, -(a*h - b*g) * s, (a*e - b*d) * s,
	}
	for _, v := range inv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return inv, det, false
		}
	}
	return inv, det, true
}

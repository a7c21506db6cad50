package picamraw

import "fmt"

// gaussianTruncate is the kernel half-width in standard deviations.
const gaussianTruncate = 4.0

// GaussianKernelSize returns the odd kernel length used for sigma.
func GaussianKernelSize(sigma float64) int {
	radius := int(gaussianTruncate*sigma + 0.5)
	return 2*radius + 1
}

// SmoothField blurs a matrix field across its two block axes with an
// isotropic Gaussian of the given sigma (in blocks). Each of the nine
// matrix entries is filtered as an independent plane, so entries are never
// mixed with each other. Borders are mirrored.
func SmoothField(field *MatrixField, sigma float64) (*MatrixField, error) {
	if !(sigma > 0) {
		return nil, fmt.Errorf("smoothing sigma must be positive, got %g", sigma)
	}
	if field.Rows == 0 || field.Cols == 0 {
		return nil, &ShapeError{What: "matrix field", Rows: field.Rows, Cols: field.Cols, Reason: "field is empty"}
	}

	kernel := getGaussianKernel1D(GaussianKernelSize(sigma), sigma)
	defer kernel.Close()

	src := NewMatWithSize(field.Rows, field.Cols)
	defer src.Close()
	dst := NewMat()
	defer dst.Close()

	out := NewMatrixField(field.Rows, field.Cols)
	for e := 0; e < 9; e++ {
		plane := src.DataFloat64()
		for b, m := range field.M {
			plane[b] = m[e]
		}
		sepFilter2DReflect(src, &dst, kernel, kernel)
		blurred := dst.DataFloat64()
		for b := range out.M {
			out.M[b][e] = blurred[b]
		}
	}
	return out, nil
}

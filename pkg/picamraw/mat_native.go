//go:build !purego && !js

package picamraw

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat {
	return Mat{m: gocv.NewMat()}
}

func NewMatWithSize(rows, cols int) Mat {
	return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)}
}

func (mat Mat) Rows() int {
	return mat.m.Rows()
}

func (mat Mat) Cols() int {
	return mat.m.Cols()
}

func (mat Mat) Empty() bool {
	return mat.m.Empty()
}

func (mat *Mat) Close() {
	mat.m.Close()
}

func (mat Mat) DataFloat64() []float64 {
	data, _ := mat.m.DataPtrFloat64()
	return data
}

// --- CV operations ---

// sepFilter2DReflect convolves rows with kernelX and columns with kernelY,
// mirroring the image at its borders (dcba|abcd).
func sepFilter2DReflect(src Mat, dst *Mat, kernelX, kernelY Mat) {
	gocv.SepFilter2D(src.m, &dst.m, gocv.MatTypeCV64F, kernelX.m, kernelY.m, image.Pt(-1, -1), 0, gocv.BorderReflect)
}

func getGaussianKernel1D(size int, sigma float64) Mat {
	return Mat{m: gocv.GetGaussianKernel(size, sigma)}
}

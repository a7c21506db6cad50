//go:build purego || js

package picamraw

import "math"

// Mat is a pure Go 2D float64 matrix.
type Mat struct {
	data []float64
	rows int
	cols int
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{
		data: make([]float64, rows*cols),
		rows: rows,
		cols: cols,
	}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m *Mat) Close() {
	m.data = nil
	m.rows = 0
	m.cols = 0
}

func (m Mat) DataFloat64() []float64 {
	return m.data
}

// --- Pure Go CV operations ---

// reflectIndex maps idx into [0, size) by mirroring about the edges,
// repeating the edge sample (dcba|abcd|dcba).
func reflectIndex(idx, size int) int {
	if size == 1 {
		return 0
	}
	period := 2 * size
	idx %= period
	if idx < 0 {
		idx += period
	}
	if idx >= size {
		idx = period - 1 - idx
	}
	return idx
}

func sepFilter2DReflect(src Mat, dst *Mat, kernelX, kernelY Mat) {
	rows, cols := src.rows, src.cols
	srcData := src.DataFloat64()
	kx := kernelX.DataFloat64()
	ky := kernelY.DataFloat64()
	kxLen := kernelX.rows * kernelX.cols
	kyLen := kernelY.rows * kernelY.cols
	kxHalf := kxLen / 2
	kyHalf := kyLen / 2

	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}

	temp := make([]float64, rows*cols)

	// Horizontal pass
	colIdx := make([]int, kxLen)
	for c := 0; c < cols; c++ {
		for k := 0; k < kxLen; k++ {
			colIdx[k] = reflectIndex(c+k-kxHalf, cols)
		}
		for r := 0; r < rows; r++ {
			rowOff := r * cols
			var sum float64
			for k := 0; k < kxLen; k++ {
				sum += srcData[rowOff+colIdx[k]] * kx[k]
			}
			temp[rowOff+c] = sum
		}
	}

	// Vertical pass, pre-computing row offsets
	dstData := dst.DataFloat64()
	rowOffs := make([]int, kyLen)
	for r := 0; r < rows; r++ {
		for k := 0; k < kyLen; k++ {
			rowOffs[k] = reflectIndex(r+k-kyHalf, rows) * cols
		}
		dstOff := r * cols
		for c := 0; c < cols; c++ {
			var sum float64
			for k := 0; k < kyLen; k++ {
				sum += temp[rowOffs[k]+c] * ky[k]
			}
			dstData[dstOff+c] = sum
		}
	}
}

func getGaussianKernel1D(size int, sigma float64) Mat {
	m := NewMatWithSize(size, 1)
	data := m.DataFloat64()
	half := size / 2
	sum := 0.0
	for i := 0; i < size; i++ {
		x := float64(i - half)
		val := math.Exp(-x * x / (2 * sigma * sigma))
		data[i] = val
		sum += val
	}
	for i := range data {
		data[i] /= sum
	}
	return m
}

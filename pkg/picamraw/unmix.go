package picamraw

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ComputeMatrices returns the colour compensation field for a calibration
// run: the inverse of every block's crosstalk matrix, optionally
// re-referenced to the measured centre response and optionally smoothed.
func ComputeMatrices(run CalibrationRun, p *UnmixParams) (*MatrixField, error) {
	if p == nil {
		p = NewUnmixParams()
	}
	if p.Smoothing != nil && !(*p.Smoothing > 0) {
		return nil, fmt.Errorf("smoothing sigma must be positive, got %g", *p.Smoothing)
	}

	crosstalk, err := EstimateCrosstalk(run)
	if err != nil {
		return nil, fmt.Errorf("estimating crosstalk: %w", err)
	}

	compensation, err := invertField(crosstalk, p.SingularityEpsilon)
	if err != nil {
		return nil, fmt.Errorf("inverting crosstalk: %w", err)
	}

	switch p.Target {
	case TargetRGB:
	case TargetCentre:
		ref, err := centralResponse(run)
		if err != nil {
			return nil, fmt.Errorf("measuring central response: %w", err)
		}
		maybeSaveText(p.SaveIntermediateFilesPath, "centre-response.txt", describeCentre(ref))
		reprojectField(compensation, ref)
	default:
		return nil, fmt.Errorf("unknown colour target %d", p.Target)
	}

	if p.Smoothing != nil {
		compensation, err = SmoothField(compensation, *p.Smoothing)
		if err != nil {
			return nil, err
		}
	}
	return compensation, nil
}

// invertField inverts every block independently. Block rows are handled
// concurrently; on failure the error for the lowest block index is
// returned.
func invertField(field *MatrixField, eps float64) (*MatrixField, error) {
	out := NewMatrixField(field.Rows, field.Cols)
	rowErrs := make([]error, field.Rows)

	var wg sync.WaitGroup
	for r := 0; r < field.Rows; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for c := 0; c < field.Cols; c++ {
				b := r*field.Cols + c
				inv, det, ok := field.M[b].Inverse(eps)
				if !ok {
					rowErrs[r] = &DegenerateError{BlockRow: r, BlockCol: c, Channel: -1,
						Reason: fmt.Sprintf("crosstalk matrix is singular (det=%g)", det)}
					return
				}
				out.M[b] = inv
			}
		}(r)
	}
	wg.Wait()

	for _, err := range rowErrs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// reprojectField replaces every matrix U with ref·U, so that unmixed
// colours are re-mixed with the centre-of-sensor response instead of
// being pushed to pure primaries.
func reprojectField(field *MatrixField, ref Mat3) {
	refDense := mat.NewDense(3, 3, ref[:])
	var prod mat.Dense
	for b := range field.M {
		u := mat.NewDense(3, 3, field.M[b][:])
		prod.Mul(refDense, u)
		copy(field.M[b][:], prod.RawMatrix().Data)
	}
}

func describeCentre(ref Mat3) string {
	var sum [3]float64
	for c := 0; c < 3; c++ {
		sum[c] = ref[c*3] + ref[c*3+1] + ref[c*3+2]
	}
	return fmt.Sprintf("Central response (rows=channel, cols=R,G,B illumination):\n%v\n%v\n%v\nAdding up the R/G/B images, we get: %v\n",
		ref[0:3], ref[3:6], ref[6:9], sum)
}

// Apply multiplies every pixel of img by its local compensation matrix.
// When the field and image sizes differ, the field is resampled with the
// given interpolation, treating each block value as sitting at the block
// centre.
func Apply(field *MatrixField, img *RGBImage, interp Interpolation) (*RGBImage, error) {
	if field.Rows == 0 || field.Cols == 0 || len(field.M) != field.Rows*field.Cols {
		return nil, &ShapeError{What: "matrix field", Rows: field.Rows, Cols: field.Cols, Reason: "field is empty or inconsistent"}
	}
	if len(img.Pix) != img.Rows*img.Cols*3 {
		return nil, &ShapeError{What: "image", Rows: img.Rows, Cols: img.Cols, Reason: "pixel buffer does not match dimensions"}
	}
	out := NewRGBImage(img.Rows, img.Cols)
	sameSize := field.Rows == img.Rows && field.Cols == img.Cols
	scaleY := float64(field.Rows) / float64(img.Rows)
	scaleX := float64(field.Cols) / float64(img.Cols)

	for y := 0; y < img.Rows; y++ {
		for x := 0; x < img.Cols; x++ {
			var m Mat3
			switch {
			case sameSize:
				m = field.M[y*field.Cols+x]
			case interp == InterpBilinear:
				m = bilinearSampleField(field, (float64(y)+0.5)*scaleY-0.5, (float64(x)+0.5)*scaleX-0.5)
			default:
				m = field.At(nearestIndex(y, scaleY, field.Rows), nearestIndex(x, scaleX, field.Cols))
			}
			out.Set(y, x, m.Apply(img.At(y, x)))
		}
	}
	return out, nil
}

// UnmixImage computes the compensation field for run and applies it.
func UnmixImage(img *RGBImage, run CalibrationRun, p *UnmixParams, interp Interpolation) (*RGBImage, error) {
	field, err := ComputeMatrices(run, p)
	if err != nil {
		return nil, err
	}
	return Apply(field, img, interp)
}

func nearestIndex(i int, scale float64, n int) int {
	j := int(math.Floor((float64(i) + 0.5) * scale))
	if j >= n {
		j = n - 1
	}
	return j
}

// bilinearSampleField interpolates the field at fractional block
// coordinates, clamping at the edges.
func bilinearSampleField(field *MatrixField, y, x float64) Mat3 {
	y = clampFloat64(y, 0, float64(field.Rows-1))
	x = clampFloat64(x, 0, float64(field.Cols-1))
	y0 := int(math.Floor(y))
	y1 := y0 + 1
	if y1 > field.Rows-1 {
		y1 = field.Rows - 1
	}
	x0 := int(math.Floor(x))
	x1 := x0 + 1
	if x1 > field.Cols-1 {
		x1 = field.Cols - 1
	}
	yRatio := y - float64(y0)
	xRatio := x - float64(x0)

	p00 := field.At(y0, x0)
	p01 := field.At(y0, x1)
	p10 := field.At(y1, x0)
	p11 := field.At(y1, x1)
	var out Mat3
	for e := range out {
		top := p00[e] + xRatio*(p01[e]-p00[e])
		bottom := p10[e] + xRatio*(p11[e]-p10[e])
		out[e] = top + yRatio*(bottom-top)
	}
	return out
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maybeSaveText(savePath, filename, text string) {
	if savePath == "" {
		return
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return
	}
	os.WriteFile(filepath.Join(savePath, filename), []byte(text), 0644)
}

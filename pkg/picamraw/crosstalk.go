package picamraw

import (
	"fmt"
	"image"
	"math"
)

// runShape checks that a calibration run has all four exposures with a
// common shape and returns that shape.
func runShape(run CalibrationRun) (int, int, error) {
	white, ok := run[IllumWhite]
	if !ok || white == nil {
		return 0, 0, &MissingImageError{Illumination: IllumWhite}
	}
	rows, cols := white.Rows, white.Cols
	for _, il := range []Illumination{IllumRed, IllumGreen, IllumBlue, IllumWhite} {
		img, ok := run[il]
		if !ok || img == nil {
			return 0, 0, &MissingImageError{Illumination: il}
		}
		if img.Rows != rows || img.Cols != cols || len(img.Pix) != rows*cols*3 {
			return 0, 0, &ShapeError{What: il.String() + " image", Rows: img.Rows, Cols: img.Cols,
				Reason: fmt.Sprintf("does not match W image %dx%d", rows, cols)}
		}
	}
	if rows == 0 || cols == 0 {
		return 0, 0, &ShapeError{What: "calibration run", Rows: rows, Cols: cols, Reason: "images are empty"}
	}
	return rows, cols, nil
}

// checkWhite rejects white images containing zero or non-finite samples,
// which would otherwise turn into infinite crosstalk terms.
func checkWhite(white *RGBImage) error {
	for i, v := range white.Pix {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			px := i / 3
			return &DegenerateError{BlockRow: px / white.Cols, BlockCol: px % white.Cols, Channel: i % 3,
				Reason: fmt.Sprintf("white image sample is %g", v)}
		}
	}
	return nil
}

// EstimateCrosstalk builds the per-block crosstalk matrices of a
// calibration run. Column k of each matrix is the block's (R, G, B)
// response to illumination k, divided by the response to white, so that
// observed = M · illumination.
func EstimateCrosstalk(run CalibrationRun) (*MatrixField, error) {
	rows, cols, err := runShape(run)
	if err != nil {
		return nil, err
	}
	white := run[IllumWhite]
	if err := checkWhite(white); err != nil {
		return nil, err
	}
	field := NewMatrixField(rows, cols)
	for k, il := range Primaries {
		img := run[il]
		for b := range field.M {
			for c := 0; c < 3; c++ {
				field.M[b][c*3+k] = img.Pix[b*3+c] / white.Pix[b*3+c]
			}
		}
	}
	return field, nil
}

// CentreWindow returns the region averaged to find the central colour
// response. The bounds are empirical and kept as they are so existing
// calibrations stay reproducible: rows run from 4/9 of the height to
// 1/2 + 5/9 of it (clipped to the image), columns from 4/9 to 5/9.
func CentreWindow(rows, cols int) image.Rectangle {
	r0 := rows * 4 / 9
	r1 := rows/2 + rows*5/9
	if r1 > rows {
		r1 = rows
	}
	return image.Rect(cols*4/9, r0, cols*5/9, r1)
}

// CentralColour returns the mean (R, G, B) of img over CentreWindow.
func CentralColour(img *RGBImage) ([3]float64, error) {
	var mean [3]float64
	win := CentreWindow(img.Rows, img.Cols)
	if win.Empty() {
		return mean, &ShapeError{What: "image", Rows: img.Rows, Cols: img.Cols, Reason: "too small for a central region"}
	}
	for y := win.Min.Y; y < win.Max.Y; y++ {
		for x := win.Min.X; x < win.Max.X; x++ {
			v := img.At(y, x)
			mean[0] += v[0]
			mean[1] += v[1]
			mean[2] += v[2]
		}
	}
	n := float64(win.Dx() * win.Dy())
	for i := range mean {
		mean[i] /= n
	}
	return mean, nil
}

// centralResponse measures the centre-of-sensor crosstalk matrix: entry
// (c, k) is the mean of channel c of run[k]/W over CentreWindow.
func centralResponse(run CalibrationRun) (Mat3, error) {
	var ref Mat3
	white := run[IllumWhite]
	for k, il := range Primaries {
		img := run[il]
		ratio := &RGBImage{Rows: img.Rows, Cols: img.Cols, Pix: make([]float64, len(img.Pix))}
		for i := range img.Pix {
			ratio.Pix[i] = img.Pix[i] / white.Pix[i]
		}
		mean, err := CentralColour(ratio)
		if err != nil {
			return ref, err
		}
		for c := 0; c < 3; c++ {
			ref[c*3+k] = mean[c]
		}
	}
	return ref, nil
}

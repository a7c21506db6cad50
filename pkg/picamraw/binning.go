package picamraw

import "fmt"

// BinPlanes averages b x b squares of three planes into an RGB image.
// Trailing rows and columns that do not fill a whole bin are dropped.
func BinPlanes(planes [3]Plane, b int) (*RGBImage, error) {
	if b < 1 {
		return nil, fmt.Errorf("binning factor must be positive, got %d", b)
	}
	h, w := planes[0].Rows, planes[0].Cols
	for _, p := range planes {
		if p.Rows != h || p.Cols != w || len(p.Data) != h*w {
			return nil, &ShapeError{What: "colour plane", Rows: p.Rows, Cols: p.Cols, Reason: "planes differ in shape"}
		}
	}
	rows, cols := h/b, w/b
	if rows == 0 || cols == 0 {
		return nil, &ShapeError{What: "colour plane", Rows: h, Cols: w, Reason: fmt.Sprintf("smaller than one %dx%d bin", b, b)}
	}
	out := NewRGBImage(rows, cols)
	area := float64(b * b)
	for ch, p := range planes {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				var sum float64
				for y := r * b; y < (r+1)*b; y++ {
					row := p.Data[y*w+c*b : y*w+(c+1)*b]
					for _, v := range row {
						sum += v
					}
				}
				out.Pix[(r*cols+c)*3+ch] = sum / area
			}
		}
	}
	return out, nil
}

// CalibrationImageFromFrame reduces a raw frame to the binned,
// offset-corrected RGB image used by the crosstalk estimation.
func CalibrationImageFromFrame(f *RawFrame, p *BinningParams) (*RGBImage, error) {
	if p == nil {
		p = NewBinningParams()
	}
	planes, err := f.Planes()
	if err != nil {
		return nil, err
	}
	img, err := BinPlanes(planes, p.Downsampling)
	if err != nil {
		return nil, err
	}
	for i := range img.Pix {
		v := img.Pix[i]*p.ChannelWeights[i%3] - p.BlackLevel
		if p.SignalFloor > 0 && v < p.SignalFloor {
			v = p.SignalFloor
		}
		img.Pix[i] = v
	}
	return img, nil
}

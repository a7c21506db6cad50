package picamraw

import "fmt"

// BayerOrder is the colour filter layout reported in the raw header.
type BayerOrder uint8

// bayerOffsets gives the (row, col) offset of R, G1, G2 and B within each
// 2x2 cell for every BayerOrder.
//
// Order 0 is the usual RGGB-style layout:
//
//	(even row, even col) = R
//	(odd  row, even col) = G
//	(even row, odd  col) = G
//	(odd  row, odd  col) = B
var bayerOffsets = [4][4][2]int{
	{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	{{1, 0}, {0, 0}, {1, 1}, {0, 1}},
	{{1, 1}, {0, 1}, {1, 0}, {0, 0}},
	{{0, 1}, {1, 1}, {0, 0}, {1, 0}},
}

// PhaseOffset returns the (row, col) offset sampled by channel phase i.
func PhaseOffset(i int) (int, int) {
	return i / 2, i % 2
}

// Validate checks the frame dimension preconditions.
func (f *RawFrame) Validate() error {
	if f.Width < 4 || f.Height < 4 {
		return &ShapeError{What: "raw frame", Rows: f.Height, Cols: f.Width, Reason: "dimensions must be at least 4"}
	}
	if f.Width%2 != 0 || f.Height%2 != 0 {
		return &ShapeError{What: "raw frame", Rows: f.Height, Cols: f.Width, Reason: "dimensions must be even"}
	}
	if len(f.Pix) != f.Width*f.Height {
		return &ShapeError{What: "raw frame", Rows: f.Height, Cols: f.Width,
			Reason: fmt.Sprintf("have %d samples, want %d", len(f.Pix), f.Width*f.Height)}
	}
	if int(f.Order) >= len(bayerOffsets) {
		return fmt.Errorf("raw frame: %w: bayer order %d", ErrInputShape, f.Order)
	}
	return nil
}

// SplitChannels extracts the four colour filter array phases of a frame.
// Phase i holds the samples at rows i/2, i/2+2, ... and columns i%2,
// i%2+2, ...; each phase is (Height/2, Width/2).
func SplitChannels(f *RawFrame) (ChannelSet, error) {
	var cs ChannelSet
	if err := f.Validate(); err != nil {
		return cs, err
	}
	rows, cols := f.Height/2, f.Width/2
	for i := range cs {
		dy, dx := PhaseOffset(i)
		ch := NewPlane(rows, cols)
		for r := 0; r < rows; r++ {
			src := f.Pix[(2*r+dy)*f.Width:]
			dst := ch.Data[r*cols:]
			for c := 0; c < cols; c++ {
				dst[c] = float64(src[2*c+dx])
			}
		}
		cs[i] = ch
	}
	return cs, nil
}

// Planes expands the mosaic into sparse R, G and B planes at full
// resolution. Each photosite's value appears only in the plane of its
// filter colour; the other two planes are zero there.
func (f *RawFrame) Planes() ([3]Plane, error) {
	var planes [3]Plane
	if err := f.Validate(); err != nil {
		return planes, err
	}
	for i := range planes {
		planes[i] = NewPlane(f.Height, f.Width)
	}
	offs := bayerOffsets[f.Order]
	// R, G1, G2, B -> plane 0, 1, 1, 2
	planeOf := [4]int{0, 1, 1, 2}
	for k, off := range offs {
		p := planes[planeOf[k]]
		for y := off[0]; y < f.Height; y += 2 {
			for x := off[1]; x < f.Width; x += 2 {
				p.Data[y*f.Width+x] = float64(f.Pix[y*f.Width+x])
			}
		}
	}
	return planes, nil
}

// SplitPlanes is SplitChannels for the sparse three-plane representation:
// each phase sample is the sum across the planes, which recovers the
// original photosite value.
func SplitPlanes(planes [3]Plane) (ChannelSet, error) {
	var cs ChannelSet
	h, w := planes[0].Rows, planes[0].Cols
	for _, p := range planes {
		if p.Rows != h || p.Cols != w || len(p.Data) != h*w {
			return cs, &ShapeError{What: "colour plane", Rows: p.Rows, Cols: p.Cols, Reason: "planes differ in shape"}
		}
	}
	if h < 4 || w < 4 || h%2 != 0 || w%2 != 0 {
		return cs, &ShapeError{What: "colour plane", Rows: h, Cols: w, Reason: "dimensions must be even and at least 4"}
	}
	rows, cols := h/2, w/2
	for i := range cs {
		dy, dx := PhaseOffset(i)
		ch := NewPlane(rows, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				idx := (2*r+dy)*w + 2*c + dx
				ch.Data[r*cols+c] = planes[0].Data[idx] + planes[1].Data[idx] + planes[2].Data[idx]
			}
		}
		cs[i] = ch
	}
	return cs, nil
}

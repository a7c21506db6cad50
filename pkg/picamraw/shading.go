package picamraw

import (
	"fmt"
	"math"
)

// LensShadingTableShape returns the (rows, cols) of the table generated
// for a sensor of the given full resolution. The table is 1/64th of the
// image, rounded up (always at least one extra cell).
func LensShadingTableShape(fullWidth, fullHeight, cellSize int) (int, int) {
	return fullHeight/(2*cellSize) + 1, fullWidth/(2*cellSize) + 1
}

// FlatLensShadingTable returns a unity-gain table, used to disable the
// camera's own shading correction while capturing calibration images.
func FlatLensShadingTable(rows, cols int) *LensShadingTable {
	t := &LensShadingTable{Channels: 4, Rows: rows, Cols: cols, Gains: make([]uint8, 4*rows*cols)}
	for i := range t.Gains {
		t.Gains[i] = 32
	}
	return t
}

func (p *LensShadingParams) validate() error {
	if p.CellSize < 2 {
		return fmt.Errorf("lens shading: cell size %d too small", p.CellSize)
	}
	if p.Window < 1 || p.Window > p.CellSize {
		return fmt.Errorf("lens shading: window %d must be in [1, %d]", p.Window, p.CellSize)
	}
	if p.UnityGain <= 0 {
		return fmt.Errorf("lens shading: unity gain must be positive, got %f", p.UnityGain)
	}
	if p.MinGain < 0 || p.MaxGain > 255 || p.MinGain > p.MaxGain {
		return fmt.Errorf("lens shading: gain bounds [%f, %f] outside [0, 255]", p.MinGain, p.MaxGain)
	}
	return nil
}

// BuildLensShadingTable turns the four channels of a raw white image into
// a lens shading table. Each channel is sampled at the centre of every
// cell, normalised to its brightest cell and converted to a gain that
// would make the image flat.
//
// The returned table has its rows in reverse order relative to the
// channel data, which is the layout the camera expects.
func BuildLensShadingTable(cs ChannelSet, p *LensShadingParams) (*LensShadingTable, error) {
	if p == nil {
		p = NewLensShadingParams()
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	iRows, iCols := cs[0].Rows, cs[0].Cols
	for i, ch := range cs {
		if ch.Rows != iRows || ch.Cols != iCols || len(ch.Data) != iRows*iCols {
			return nil, &ShapeError{What: fmt.Sprintf("channel %d", i), Rows: ch.Rows, Cols: ch.Cols, Reason: "channels differ in shape"}
		}
	}
	if iRows < 2 || iCols < 2 {
		return nil, &ShapeError{What: "channel", Rows: iRows, Cols: iCols, Reason: "dimensions must be at least 2"}
	}

	lRows, lCols := LensShadingTableShape(2*iCols, 2*iRows, p.CellSize)
	table := &LensShadingTable{Channels: len(cs), Rows: lRows, Cols: lCols, Gains: make([]uint8, len(cs)*lRows*lCols)}

	for i, ch := range cs {
		if allZero(ch.Data) {
			return nil, &DegenerateError{BlockRow: -1, BlockCol: -1, Channel: i,
				Reason: "white image channel is all zero"}
		}
		shading := shadingForChannel(ch, lRows, lCols, p)

		maxVal := math.Inf(-1)
		for _, v := range shading {
			if v > maxVal {
				maxVal = v
			}
		}
		// A channel below the black level has a negative maximum. Dividing
		// by it still puts the brightest cell at 1.
		if maxVal == 0 || math.IsNaN(maxVal) || math.IsInf(maxVal, 0) {
			return nil, &DegenerateError{BlockRow: -1, BlockCol: -1, Channel: i,
				Reason: fmt.Sprintf("shading maximum is %g, cannot normalise", maxVal)}
		}

		for r := 0; r < lRows; r++ {
			// The consuming format stores rows bottom-up.
			dst := table.Gains[(i*lRows+(lRows-1-r))*lCols:]
			for c := 0; c < lCols; c++ {
				s := shading[r*lCols+c] / maxVal
				dst[c] = gainFromShading(s, p)
			}
		}
	}
	return table, nil
}

func allZero(data []float64) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}
	return true
}

// shadingForChannel averages a Window x Window box at the centre of every
// cell, after edge-replication padding the channel to a whole number of
// cells.
func shadingForChannel(ch Plane, lRows, lCols int, p *LensShadingParams) []float64 {
	padded := padEdge(ch, lRows*p.CellSize, lCols*p.CellSize)
	out := make([]float64, lRows*lCols)
	centre := p.CellSize / 2
	lo := -(p.Window / 2)
	hi := p.Window - 1 - p.Window/2
	area := float64(p.Window * p.Window)
	for r := 0; r < lRows; r++ {
		for c := 0; c < lCols; c++ {
			var sum float64
			for dy := lo; dy <= hi; dy++ {
				row := padded.Data[(r*p.CellSize+centre+dy)*padded.Cols:]
				for dx := lo; dx <= hi; dx++ {
					sum += row[c*p.CellSize+centre+dx] - p.BlackLevel
				}
			}
			out[r*lCols+c] = sum / area
		}
	}
	return out
}

// padEdge extends a plane to (rows, cols) by replicating its last row and
// column. The result never shares storage with the input.
func padEdge(src Plane, rows, cols int) Plane {
	out := NewPlane(rows, cols)
	for r := 0; r < rows; r++ {
		sr := r
		if sr >= src.Rows {
			sr = src.Rows - 1
		}
		srcRow := src.Data[sr*src.Cols : (sr+1)*src.Cols]
		dst := out.Data[r*cols : (r+1)*cols]
		n := copy(dst, srcRow)
		last := srcRow[src.Cols-1]
		for c := n; c < cols; c++ {
			dst[c] = last
		}
	}
	return out
}

// gainFromShading converts a normalised shading value into a clipped 8-bit
// gain. Conversion truncates.
func gainFromShading(s float64, p *LensShadingParams) uint8 {
	g := p.UnityGain / s
	if math.IsNaN(g) || g < p.MinGain {
		g = p.MinGain
	}
	if g > p.MaxGain {
		g = p.MaxGain
	}
	return uint8(g)
}

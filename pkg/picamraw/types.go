package picamraw

import (
	"fmt"
	"strings"
)

// Illumination identifies one of the four calibration exposures.
type Illumination int

const (
	IllumRed Illumination = iota
	IllumGreen
	IllumBlue
	IllumWhite
)

// Primaries lists the single-colour illuminations in matrix column order.
var Primaries = [3]Illumination{IllumRed, IllumGreen, IllumBlue}

func (il Illumination) String() string {
	switch il {
	case IllumRed:
		return "R"
	case IllumGreen:
		return "G"
	case IllumBlue:
		return "B"
	case IllumWhite:
		return "W"
	default:
		return "Unknown"
	}
}

// LED returns the (r, g, b) drive levels used to capture this exposure.
func (il Illumination) LED() [3]int {
	switch il {
	case IllumRed:
		return [3]int{255, 0, 0}
	case IllumGreen:
		return [3]int{0, 255, 0}
	case IllumBlue:
		return [3]int{0, 0, 255}
	default:
		return [3]int{255, 255, 255}
	}
}

// ColourTarget selects what the unmixing matrices correct towards.
type ColourTarget int

const (
	// TargetRGB unmixes to fully saturated primaries.
	TargetRGB ColourTarget = iota
	// TargetCentre unmixes so that every block reproduces the colour
	// response measured at the centre of the sensor.
	TargetCentre
)

func (t ColourTarget) String() string {
	switch t {
	case TargetRGB:
		return "rgb"
	case TargetCentre:
		return "centre"
	default:
		return "unknown"
	}
}

// ParseColourTarget accepts "rgb", "centre" and "center".
func ParseColourTarget(s string) (ColourTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb":
		return TargetRGB, nil
	case "centre", "center":
		return TargetCentre, nil
	default:
		return 0, fmt.Errorf("unknown colour target %q (want rgb or centre)", s)
	}
}

// Interpolation selects how a coarse matrix field is resampled onto an
// image of a different size.
type Interpolation int

const (
	InterpNearest Interpolation = iota
	InterpBilinear
)

func (i Interpolation) String() string {
	switch i {
	case InterpNearest:
		return "nearest"
	case InterpBilinear:
		return "bilinear"
	default:
		return "unknown"
	}
}

func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest":
		return InterpNearest, nil
	case "bilinear":
		return InterpBilinear, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q (want nearest or bilinear)", s)
	}
}

// RawFrame is an un-demosaiced sensor frame. Pix is row-major, one 10-bit
// sample per photosite.
type RawFrame struct {
	Width  int
	Height int
	Pix    []uint16
	Order  BayerOrder
}

// Plane is a single-channel float image, row-major.
type Plane struct {
	Rows int
	Cols int
	Data []float64
}

func NewPlane(rows, cols int) Plane {
	return Plane{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func (p Plane) At(r, c int) float64     { return p.Data[r*p.Cols+c] }
func (p Plane) Set(r, c int, v float64) { p.Data[r*p.Cols+c] = v }

// ChannelSet holds the four mosaic phases of a frame. Phase i was sampled
// at row offset i/2 and column offset i%2.
type ChannelSet [4]Plane

// RGBImage is an image of interleaved (R, G, B) float triples.
type RGBImage struct {
	Rows int
	Cols int
	Pix  []float64
}

func NewRGBImage(rows, cols int) *RGBImage {
	return &RGBImage{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols*3)}
}

func (im *RGBImage) At(r, c int) [3]float64 {
	i := (r*im.Cols + c) * 3
	return [3]float64{im.Pix[i], im.Pix[i+1], im.Pix[i+2]}
}

func (im *RGBImage) Set(r, c int, v [3]float64) {
	i := (r*im.Cols + c) * 3
	im.Pix[i], im.Pix[i+1], im.Pix[i+2] = v[0], v[1], v[2]
}

// Clone returns a deep copy.
func (im *RGBImage) Clone() *RGBImage {
	out := &RGBImage{Rows: im.Rows, Cols: im.Cols, Pix: make([]float64, len(im.Pix))}
	copy(out.Pix, im.Pix)
	return out
}

// CalibrationRun maps each illumination to its binned, offset-corrected
// RGB image.
type CalibrationRun map[Illumination]*RGBImage

// LensShadingTable holds 8-bit gains laid out as [channel][row][col].
// A gain of 32 is unity.
type LensShadingTable struct {
	Channels int
	Rows     int
	Cols     int
	Gains    []uint8
}

func (t *LensShadingTable) At(ch, r, c int) uint8 {
	return t.Gains[(ch*t.Rows+r)*t.Cols+c]
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [9]float64

// Identity3 is the 3x3 identity matrix.
var Identity3 = Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}

func (m Mat3) At(r, c int) float64 { return m[r*3+c] }

// Apply returns m·v.
func (m Mat3) Apply(v [3]float64) [3]float64 {
	return [3]float64{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// MatrixField is a grid of 3x3 matrices, one per spatial block, stored
// row-major over blocks.
type MatrixField struct {
	Rows int
	Cols int
	M    []Mat3
}

func NewMatrixField(rows, cols int) *MatrixField {
	return &MatrixField{Rows: rows, Cols: cols, M: make([]Mat3, rows*cols)}
}

func (f *MatrixField) At(r, c int) Mat3 { return f.M[r*f.Cols+c] }

// UnmixingCalibration is the persisted result of an unmixing calibration:
// the compensation field and the white image it was derived from.
type UnmixingCalibration struct {
	Matrices *MatrixField
	White    *RGBImage
}

// LensShadingParams configures BuildLensShadingTable.
type LensShadingParams struct {
	// CellSize is the table cell pitch in channel pixels. Channels are half
	// resolution, so 32 corresponds to 64 sensor pixels.
	CellSize int
	// Window is the side of the box averaged at the centre of each cell.
	Window     int
	BlackLevel float64
	UnityGain  float64
	MinGain    float64
	MaxGain    float64
}

// NewLensShadingParams returns the settings expected by the camera
// firmware's lens shading table format.
func NewLensShadingParams() *LensShadingParams {
	return &LensShadingParams{
		CellSize:   32,
		Window:     3,
		BlackLevel: 64,
		UnityGain:  32,
		MinGain:    32,
		MaxGain:    255,
	}
}

// BinningParams configures the reduction of a raw frame into a
// calibration image.
type BinningParams struct {
	Downsampling int
	// ChannelWeights compensates for the fraction of photosites carrying
	// each colour (one red, two green, one blue per 2x2 cell).
	ChannelWeights [3]float64
	BlackLevel     float64
	// SignalFloor, when positive, clamps binned values from below so that
	// white images never contain zeros.
	SignalFloor float64
}

func NewBinningParams() *BinningParams {
	return &BinningParams{
		Downsampling:   16,
		ChannelWeights: [3]float64{4, 2, 4},
		BlackLevel:     64,
	}
}

// UnmixParams configures ComputeMatrices.
type UnmixParams struct {
	Target ColourTarget
	// Smoothing is the Gaussian sigma in block units; nil disables it.
	Smoothing *float64
	// SingularityEpsilon is the largest |det| treated as singular.
	SingularityEpsilon        float64
	SaveIntermediateFilesPath string
}

func NewUnmixParams() *UnmixParams {
	return &UnmixParams{Target: TargetCentre}
}

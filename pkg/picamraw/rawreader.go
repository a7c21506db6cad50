package picamraw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	brcmMagic        = "BRCM"
	brcmHeaderOffset = 176
	brcmHeaderSize   = 70
	brcmPixelOffset  = 32768
)

// rawTrailerSizes gives, per sensor and sensor mode, how many bytes from
// the end of a JPEG+RAW capture the BRCM raw block starts.
var rawTrailerSizes = map[string]map[int]int{
	"OV5647": {
		0: 6404096,
		1: 2717696,
		2: 6404096,
		3: 6404096,
		4: 1625600,
		5: 1233920,
		6: 445440,
		7: 445440,
	},
	"IMX219": {
		0: 10270208,
		1: 2678784,
		2: 10270208,
		3: 10270208,
		4: 2628608,
		5: 1963008,
		6: 1233920,
		7: 445440,
	},
}

// RawReadParams identifies the sensor that produced a capture.
type RawReadParams struct {
	Sensor     string
	SensorMode int
}

// NewRawReadParams returns the settings for full-resolution captures from
// the v2 camera module.
func NewRawReadParams() *RawReadParams {
	return &RawReadParams{Sensor: "IMX219", SensorMode: 0}
}

// BroadcomRawHeader is the part of the raw block header we need.
type BroadcomRawHeader struct {
	Name         string
	Width        int
	Height       int
	PaddingRight int
	PaddingDown  int
	Transform    int
	Format       int
	BayerOrder   BayerOrder
	BayerFormat  int
}

// ReadRaw extracts the raw Bayer frame appended to a JPEG capture.
func ReadRaw(filePath string, p *RawReadParams) (*RawFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, &SerializationError{Path: filePath, Err: fmt.Errorf("opening raw capture: %w", err)}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &SerializationError{Path: filePath, Err: fmt.Errorf("reading raw capture: %w", err)}
	}
	frame, err := ReadRawFromBytes(data, p)
	if err != nil {
		if se, ok := err.(*SerializationError); ok {
			se.Path = filePath
		}
		return nil, err
	}
	return frame, nil
}

// ReadRawFromBytes extracts the raw Bayer frame from an in-memory capture.
func ReadRawFromBytes(data []byte, p *RawReadParams) (*RawFrame, error) {
	if p == nil {
		p = NewRawReadParams()
	}
	modes, ok := rawTrailerSizes[strings.ToUpper(p.Sensor)]
	if !ok {
		return nil, &SerializationError{Err: fmt.Errorf("unsupported sensor %q", p.Sensor)}
	}
	size, ok := modes[p.SensorMode]
	if !ok {
		return nil, &SerializationError{Err: fmt.Errorf("unsupported sensor mode %d for %s", p.SensorMode, p.Sensor)}
	}
	if len(data) < size {
		return nil, &SerializationError{Err: fmt.Errorf("capture is %d bytes, too short for a %d byte raw block", len(data), size)}
	}
	return decodeRawBlock(data[len(data)-size:])
}

func decodeRawBlock(block []byte) (*RawFrame, error) {
	if len(block) < brcmPixelOffset || string(block[:4]) != brcmMagic {
		return nil, &SerializationError{Err: fmt.Errorf("unable to locate Bayer data at end of buffer")}
	}
	hdr, err := parseBroadcomHeader(block[brcmHeaderOffset : brcmHeaderOffset+brcmHeaderSize])
	if err != nil {
		return nil, &SerializationError{Err: err}
	}

	// Rows are packed 4 pixels per 5 bytes and padded to 32 bytes;
	// the row count is padded to 16.
	cropW := hdr.Width * 5 / 4
	strideW := padUp(((hdr.Width+hdr.PaddingRight)*5+3)/4, 32)
	strideH := padUp(hdr.Height+hdr.PaddingDown, 16)
	pixels := block[brcmPixelOffset:]
	if len(pixels) < strideW*strideH {
		return nil, &SerializationError{Err: fmt.Errorf("raw block holds %d bytes, need %dx%d", len(pixels), strideW, strideH)}
	}

	frame := &RawFrame{
		Width:  cropW / 5 * 4,
		Height: hdr.Height,
		Order:  hdr.BayerOrder,
	}
	frame.Pix = make([]uint16, frame.Width*frame.Height)
	for y := 0; y < frame.Height; y++ {
		unpack10BitRow(frame.Pix[y*frame.Width:(y+1)*frame.Width], pixels[y*strideW:y*strideW+cropW])
	}
	return frame, nil
}

func parseBroadcomHeader(b []byte) (BroadcomRawHeader, error) {
	var h BroadcomRawHeader
	if len(b) < brcmHeaderSize {
		return h, fmt.Errorf("raw header truncated")
	}
	le := binary.LittleEndian
	h.Name = string(bytes.TrimRight(b[:32], "\x00"))
	h.Width = int(le.Uint16(b[32:]))
	h.Height = int(le.Uint16(b[34:]))
	h.PaddingRight = int(le.Uint16(b[36:]))
	h.PaddingDown = int(le.Uint16(b[38:]))
	h.Transform = int(le.Uint16(b[64:]))
	h.Format = int(le.Uint16(b[66:]))
	h.BayerOrder = BayerOrder(b[68])
	h.BayerFormat = int(b[69])
	if h.Width == 0 || h.Height == 0 {
		return h, fmt.Errorf("raw header reports %dx%d frame", h.Width, h.Height)
	}
	if int(h.BayerOrder) >= len(bayerOffsets) {
		return h, fmt.Errorf("raw header reports unknown bayer order %d", h.BayerOrder)
	}
	return h, nil
}

// unpack10BitRow expands groups of 5 bytes (the high 8 bits of 4 samples,
// then their low 2 bits packed into the fifth byte) into 10-bit samples.
func unpack10BitRow(dst []uint16, src []byte) {
	for g := 0; g+5 <= len(src) && g/5*4+4 <= len(dst); g += 5 {
		low := src[g+4]
		base := g / 5 * 4
		for i := 0; i < 4; i++ {
			dst[base+i] = uint16(src[g+i])<<2 | uint16(low>>(6-2*i))&3
		}
	}
}

func padUp(v, multiple int) int {
	return (v + multiple - 1) / multiple * multiple
}

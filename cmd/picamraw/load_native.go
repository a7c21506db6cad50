//go:build !purego && !js

package main

import (
	"encoding/binary"
	"fmt"

	"gocv.io/x/gocv"
)

// readRGB8 decodes an image into interleaved 8-bit R, G, B samples.
func readRGB8(path string) (int, int, []uint8, error) {
	src := gocv.IMRead(path, gocv.IMReadColor)
	if src.Empty() {
		return 0, 0, nil, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(src, &rgb, gocv.ColorBGRToRGB)

	w, h := rgb.Cols(), rgb.Rows()
	pix, err := rgb.DataPtrUint8()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("reading pixels of %s: %w", path, err)
	}
	out := make([]uint8, w*h*3)
	copy(out, pix)
	return w, h, out, nil
}

func writeRGB8(path string, w, h int, pix []uint8) error {
	return writeMat(path, h, w, gocv.MatTypeCV8UC3, pix)
}

func writeRGB16(path string, w, h int, pix []uint16) error {
	buf := make([]byte, 2*len(pix))
	for i, v := range pix {
		binary.NativeEndian.PutUint16(buf[2*i:], v)
	}
	return writeMat(path, h, w, gocv.MatTypeCV16UC3, buf)
}

// writeMat wraps interleaved RGB bytes in a Mat and writes it in the
// format implied by the file extension.
func writeMat(path string, rows, cols int, mt gocv.MatType, data []byte) error {
	rgb, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return fmt.Errorf("wrapping image for %s: %w", path, err)
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)

	if !gocv.IMWrite(path, bgr) {
		return fmt.Errorf("could not write image: %s", path)
	}
	return nil
}

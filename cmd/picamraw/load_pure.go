//go:build purego || js

package main

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/tiff"
)

// readRGB8 decodes an image into interleaved 8-bit R, G, B samples.
func readRGB8(path string) (int, int, []uint8, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]uint8, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*w + x) * 3
			pix[i], pix[i+1], pix[i+2] = uint8(r>>8), uint8(g>>8), uint8(b>>8)
		}
	}
	return w, h, pix, nil
}

func writeRGB8(path string, w, h int, pix []uint8) (err error) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[4*i] = pix[3*i]
		img.Pix[4*i+1] = pix[3*i+1]
		img.Pix[4*i+2] = pix[3*i+2]
		img.Pix[4*i+3] = 255
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}

func writeRGB16(path string, w, h int, pix []uint16) (err error) {
	img := image.NewRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			img.SetRGBA64(x, y, color.RGBA64{R: pix[i], G: pix[i+1], B: pix[i+2], A: 0xffff})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
}

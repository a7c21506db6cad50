package picamraw

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var channelLabels = [4]string{"R", "Gr", "Gb", "B"}

// RenderShadingOverlay draws the four gain maps of a lens shading table
// as a 2x2 panel heat map and writes it to a JPEG file. Gains are reported
// relative to p.UnityGain; a nil p uses NewLensShadingParams.
func RenderShadingOverlay(t *LensShadingTable, p *LensShadingParams, outputPath string) (err error) {
	img, err := renderShadingImage(t, p)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close overlay file: %w", cerr)
		}
	}()

	return encodeOverlay(f, img)
}

// RenderShadingOverlayBytes is RenderShadingOverlay returning JPEG bytes.
func RenderShadingOverlayBytes(t *LensShadingTable, p *LensShadingParams) ([]byte, error) {
	img, err := renderShadingImage(t, p)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encodeOverlay(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeOverlay(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}

func renderShadingImage(t *LensShadingTable, p *LensShadingParams) (*image.RGBA, error) {
	if p == nil {
		p = NewLensShadingParams()
	}
	if !(p.UnityGain > 0) {
		return nil, fmt.Errorf("unity gain must be positive, got %g", p.UnityGain)
	}
	if t == nil || t.Rows == 0 || t.Cols == 0 || len(t.Gains) != t.Channels*t.Rows*t.Cols {
		return nil, fmt.Errorf("no lens shading data")
	}

	// Each panel is ~400px wide, cells are square.
	const panelTarget = 400
	cell := panelTarget / t.Cols
	if cell < 2 {
		cell = 2
	}
	panelW := cell * t.Cols
	panelH := cell * t.Rows
	const labelH = 20
	const gap = 10
	summaryH := 40

	imgW := 2*panelW + 3*gap
	imgH := 2*(panelH+labelH) + 3*gap + summaryH
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 255
	}

	lo, hi := uint8(255), uint8(0)
	for _, g := range t.Gains {
		if g < lo {
			lo = g
		}
		if g > hi {
			hi = g
		}
	}

	face := basicfont.Face7x13
	textColor := color.RGBA{255, 255, 255, 255}
	for ch := 0; ch < t.Channels && ch < 4; ch++ {
		ox := gap + (ch%2)*(panelW+gap)
		oy := gap + (ch/2)*(panelH+labelH+gap)
		drawText(img, face, channelLabels[ch], ox, oy+13, textColor)
		oy += labelH
		for r := 0; r < t.Rows; r++ {
			for c := 0; c < t.Cols; c++ {
				fillRect(img, ox+c*cell, oy+r*cell, cell, cell, gainColor(t.At(ch, r, c), lo, hi))
			}
		}
	}

	summaryColor := color.RGBA{220, 220, 220, 255}
	summaryY := imgH - summaryH + 15
	for i, line := range overlaySummary(t, lo, hi, p.UnityGain) {
		drawText(img, face, line, 10, summaryY+18*i, summaryColor)
	}

	return img, nil
}

func overlaySummary(t *LensShadingTable, lo, hi uint8, unity float64) []string {
	return []string{
		fmt.Sprintf("Table: %d x %d cells, gain %d..%d (unity %g)", t.Cols, t.Rows, lo, hi, unity),
		fmt.Sprintf("Max correction: x%.2f", float64(hi)/unity),
	}
}

// gainColor maps a gain onto a blue-green-red ramp between lo and hi.
func gainColor(g, lo, hi uint8) color.RGBA {
	if hi <= lo {
		return color.RGBA{0, 100, 20, 255}
	}
	t := float64(g-lo) / float64(hi-lo)

	var r, gr, b uint8
	switch {
	case t <= 0.5:
		s := t / 0.5
		r = 20
		gr = uint8(40 + s*120)
		b = uint8(160 - s*140)
	default:
		s := math.Min((t-0.5)/0.5, 1.0)
		r = uint8(20 + s*235)
		gr = uint8(160 - s*120)
		b = 20
	}
	return color.RGBA{r, gr, b, 255}
}

func fillRect(img *image.RGBA, x0, y0, w, h int, c color.RGBA) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawText draws a string with its baseline at (x, y).
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

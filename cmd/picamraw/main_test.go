package main

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	pr "github.com/eli-silver/microfluidics/pkg/picamraw"
)

var sensorArgs = []string{"-sensor", "OV5647", "-mode", "6"}

// writeCapture writes a fake OV5647 mode 6 JPEG+RAW capture of a 32x32
// frame whose R, G and B photosites (bayer order 0) read rgb.
func writeCapture(t *testing.T, path string, rgb [3]uint16) {
	t.Helper()
	const (
		blockSize   = 445440
		headerAt    = 176
		pixelsAt    = 32768
		w, h        = 32, 32
		stride      = 64
		groupsInRow = w / 4
	)
	block := make([]byte, blockSize)
	copy(block, "BRCM")
	binary.LittleEndian.PutUint16(block[headerAt+32:], w)
	binary.LittleEndian.PutUint16(block[headerAt+34:], h)
	for y := 0; y < h; y++ {
		row := block[pixelsAt+y*stride:]
		for g := 0; g < groupsInRow; g++ {
			var low byte
			for i := 0; i < 4; i++ {
				x := 4*g + i
				v := rgb[1]
				switch {
				case y%2 == 0 && x%2 == 0:
					v = rgb[0]
				case y%2 == 1 && x%2 == 1:
					v = rgb[2]
				}
				row[5*g+i] = byte(v >> 2)
				low |= byte(v&3) << (6 - 2*i)
			}
			row[5*g+4] = low
		}
	}
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xD9}, block...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunUsage(t *testing.T) {
	tests := [][]string{
		nil,
		{"bogus"},
		{"lst"},
		{"lst", "a.jpg", "b.jpg"},
		{"unmix", "-target", "purple", "dir"},
		{"unmix", "-smoothing", "-1", "dir"},
		{"apply", "only-one"},
		{"apply", "-interp", "cubic", "a", "b"},
		{"extract"},
		{"lst", "-nosuchflag", "a.jpg"},
	}
	for _, args := range tests {
		err := run(args, io.Discard)
		var ue usageError
		if !errors.As(err, &ue) {
			t.Errorf("run(%q) = %v, want a usage error", args, err)
		}
	}
}

func TestParseFlagsInterleaved(t *testing.T) {
	fs := newFlagSet("test")
	output := fs.String("output", "", "")
	pos, err := parseFlags(fs, []string{"a", "-output", "o.yaml", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]string{"a", "b"}, pos); d != "" {
		t.Errorf("positional (-want +got):\n%s", d)
	}
	if *output != "o.yaml" {
		t.Errorf("output = %q", *output)
	}
}

func TestFileRoot(t *testing.T) {
	if got := fileRoot("dir/capture.jpg"); got != "dir/capture" {
		t.Errorf("fileRoot = %q", got)
	}
}

func TestRunLST(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "white.jpg")
	writeCapture(t, capture, [3]uint16{300, 300, 300})
	out := filepath.Join(dir, "lst.yaml")

	args := append([]string{"lst", capture, "-output", out}, sensorArgs...)
	if err := run(args, io.Discard); err != nil {
		t.Fatal(err)
	}
	table, err := pr.LoadLensShadingTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if table.Channels != 4 || table.Rows != 1 || table.Cols != 1 {
		t.Fatalf("got %dx%dx%d table", table.Channels, table.Rows, table.Cols)
	}
	for _, g := range table.Gains {
		if g != 32 {
			t.Errorf("gain %d, want 32", g)
		}
	}
}

func TestRunLSTMissingFile(t *testing.T) {
	err := run(append([]string{"lst", filepath.Join(t.TempDir(), "none.jpg")}, sensorArgs...), io.Discard)
	if !errors.Is(err, pr.ErrSerialization) {
		t.Errorf("got %v, want ErrSerialization", err)
	}
}

func writeCalibrationFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	levels := map[pr.Illumination][3]uint16{
		pr.IllumWhite: {264, 264, 264},
		pr.IllumRed:   {224, 84, 74},
		pr.IllumGreen: {84, 224, 94},
		pr.IllumBlue:  {74, 94, 224},
	}
	for il, v := range levels {
		writeCapture(t, filepath.Join(dir, pr.CaptureFileName(il)), v)
	}
	return dir
}

func TestRunUnmixAndApply(t *testing.T) {
	folder := writeCalibrationFolder(t)
	dir := t.TempDir()
	matrices := filepath.Join(dir, "unmixing_matrices.yaml")

	args := append([]string{"unmix", folder, "-target", "rgb", "-output", matrices}, sensorArgs...)
	if err := run(args, io.Discard); err != nil {
		t.Fatal(err)
	}
	cal, err := pr.LoadUnmixing(matrices)
	if err != nil {
		t.Fatal(err)
	}
	if cal.Matrices.Rows != 2 || cal.Matrices.Cols != 2 || cal.White == nil {
		t.Fatalf("unexpected calibration %+v", cal)
	}
	crosstalk := pr.Mat3{
		0.8, 0.1, 0.05,
		0.1, 0.8, 0.15,
		0.05, 0.15, 0.8,
	}
	// Each primary's response unmixes to that primary alone.
	u := cal.Matrices.At(0, 0)
	for k := 0; k < 3; k++ {
		got := u.Apply([3]float64{crosstalk.At(0, k), crosstalk.At(1, k), crosstalk.At(2, k)})
		for i, v := range got {
			want := pr.Identity3.At(i, k)
			if d := v - want; d > 1e-9 || d < -1e-9 {
				t.Fatalf("primary %d unmixes to %v, want column %d of identity", k, got, k)
			}
		}
	}

	img := filepath.Join(dir, "scene.png")
	pix := make([]uint8, 4*6*3)
	for i := range pix {
		pix[i] = 100
	}
	if err := writeRGB8(img, 4, 6, pix); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "scene_unmixed.png")
	if err := run([]string{"apply", matrices, img, "-interp", "nearest"}, io.Discard); err != nil {
		t.Fatal(err)
	}
	w, h, _, err := readRGB8(out)
	if err != nil {
		t.Fatal(err)
	}
	if w != 4 || h != 6 {
		t.Errorf("unmixed image is %dx%d, want 4x6", w, h)
	}

	// A saved calibration has its target fixed already.
	for _, args := range [][]string{
		{"apply", matrices, img, "-target", "rgb"},
		{"unmix", matrices, "-target", "centre", "-output", filepath.Join(dir, "again.yaml")},
	} {
		var ue usageError
		if err := run(args, io.Discard); !errors.As(err, &ue) {
			t.Errorf("%v: got %v, want usage error", args, err)
		}
	}
	if err := run([]string{"unmix", matrices, "-smoothing", "1", "-output", filepath.Join(dir, "smoothed.yaml")}, io.Discard); err != nil {
		t.Errorf("re-smoothing a saved calibration: %v", err)
	}
}

func TestRunExtract(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "capture.jpg")
	writeCapture(t, capture, [3]uint16{1023, 512, 4})
	if err := run(append([]string{"extract", capture}, sensorArgs...), io.Discard); err != nil {
		t.Fatal(err)
	}
	w, h, pix, err := readRGB8(filepath.Join(dir, "capture_raw8.png"))
	if err != nil {
		t.Fatal(err)
	}
	if w != 32 || h != 32 {
		t.Fatalf("raw8 image is %dx%d, want 32x32", w, h)
	}
	// (0,0) is red, (0,1) green, (1,1) blue
	if d := cmp.Diff([]uint8{255, 0, 0, 0, 128, 0}, pix[:6]); d != "" {
		t.Errorf("first pixels (-want +got):\n%s", d)
	}
	if b := pix[(32+1)*3+2]; b != 1 {
		t.Errorf("blue sample = %d, want 1", b)
	}
	if _, err := os.Stat(filepath.Join(dir, "capture_raw16.tif")); err != nil {
		t.Error(err)
	}
}

package picamraw

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ov5647Mode6 selects the smallest raw block size in the table.
var ov5647Mode6 = &RawReadParams{Sensor: "OV5647", SensorMode: 6}

// makeCapture builds a fake JPEG+RAW capture: a short JPEG prefix followed
// by a BRCM block holding the given 10-bit frame.
func makeCapture(t *testing.T, w, h int, order BayerOrder, sample func(x, y int) uint16) []byte {
	t.Helper()
	size := rawTrailerSizes["OV5647"][6]
	block := make([]byte, size)
	copy(block, brcmMagic)
	hdr := block[brcmHeaderOffset:]
	copy(hdr, "testc-3280x2464")
	le := binary.LittleEndian
	le.PutUint16(hdr[32:], uint16(w))
	le.PutUint16(hdr[34:], uint16(h))
	hdr[68] = byte(order)

	stride := padUp((w*5+3)/4, 32)
	if brcmPixelOffset+stride*padUp(h, 16) > size {
		t.Fatalf("%dx%d frame does not fit the raw block", w, h)
	}
	for y := 0; y < h; y++ {
		row := block[brcmPixelOffset+y*stride:]
		for x := 0; x < w; x += 4 {
			g := row[x/4*5:]
			var low byte
			for i := 0; i < 4; i++ {
				s := sample(x+i, y)
				g[i] = byte(s >> 2)
				low |= byte(s&3) << (6 - 2*i)
			}
			g[4] = low
		}
	}
	return append([]byte{0xFF, 0xD8, 0xFF, 0xD9}, block...)
}

func TestReadRawFromBytes(t *testing.T) {
	sample := func(x, y int) uint16 { return uint16((y*8 + x) * 13 % 1024) }
	data := makeCapture(t, 8, 4, 1, sample)

	frame, err := ReadRawFromBytes(data, &RawReadParams{Sensor: "ov5647", SensorMode: 6})
	if err != nil {
		t.Fatal(err)
	}
	if frame.Width != 8 || frame.Height != 4 || frame.Order != 1 {
		t.Fatalf("got %dx%d order %d, want 8x4 order 1", frame.Width, frame.Height, frame.Order)
	}
	want := make([]uint16, 32)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			want[y*8+x] = sample(x, y)
		}
	}
	if d := cmp.Diff(want, frame.Pix); d != "" {
		t.Errorf("unpacked samples (-want +got):\n%s", d)
	}
}

func TestReadRawFromBytesErrors(t *testing.T) {
	good := makeCapture(t, 8, 4, 0, func(x, y int) uint16 { return 512 })
	noMagic := append([]byte(nil), good...)
	copy(noMagic[len(noMagic)-rawTrailerSizes["OV5647"][6]:], "JUNK")

	tests := []struct {
		name string
		data []byte
		p    *RawReadParams
	}{
		{"short", good[:1000], ov5647Mode6},
		{"no magic", noMagic, ov5647Mode6},
		{"unknown sensor", good, &RawReadParams{Sensor: "IMX477"}},
		{"unknown mode", good, &RawReadParams{Sensor: "OV5647", SensorMode: 9}},
		{"wrong mode", good, &RawReadParams{Sensor: "IMX219", SensorMode: 6}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadRawFromBytes(tc.data, tc.p); !errors.Is(err, ErrSerialization) {
				t.Errorf("got %v, want ErrSerialization", err)
			}
		})
	}
}

func TestReadRawReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jpg")
	_, err := ReadRaw(path, ov5647Mode6)
	var se *SerializationError
	if !errors.As(err, &se) || se.Path != path {
		t.Fatalf("got %v, want SerializationError for %s", err, path)
	}

	bad := filepath.Join(t.TempDir(), "bad.jpg")
	if err := os.WriteFile(bad, []byte("not a capture"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = ReadRaw(bad, ov5647Mode6)
	if !errors.As(err, &se) || se.Path != bad {
		t.Errorf("got %v, want SerializationError for %s", err, bad)
	}
}

func TestUnpack10BitRow(t *testing.T) {
	src := []byte{0xFF, 0x00, 0x80, 0x01, 0b11_01_10_00}
	dst := make([]uint16, 4)
	unpack10BitRow(dst, src)
	want := []uint16{0x3FF, 0x001, 0x202, 0x004}
	if d := cmp.Diff(want, dst); d != "" {
		t.Errorf("unpack10BitRow (-want +got):\n%s", d)
	}
}

func TestLoadRun(t *testing.T) {
	dir := t.TempDir()
	levels := map[Illumination]uint16{IllumWhite: 264, IllumRed: 164, IllumGreen: 114, IllumBlue: 94}
	for il, v := range levels {
		data := makeCapture(t, 32, 32, 0, func(x, y int) uint16 { return v })
		if err := os.WriteFile(filepath.Join(dir, CaptureFileName(il)), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	run, err := LoadRun(dir, ov5647Mode6, nil)
	if err != nil {
		t.Fatal(err)
	}
	for il, v := range levels {
		img := run[il]
		if img == nil || img.Rows != 2 || img.Cols != 2 {
			t.Fatalf("%s image missing or wrong size", il)
		}
		for i, got := range img.Pix {
			if want := float64(v) - 64; got != want {
				t.Fatalf("%s sample %d = %g, want %g", il, i, got, want)
			}
		}
	}
}

func TestLoadRunMissingImage(t *testing.T) {
	dir := t.TempDir()
	data := makeCapture(t, 32, 32, 0, func(x, y int) uint16 { return 200 })
	for _, il := range []Illumination{IllumWhite, IllumRed, IllumBlue} {
		if err := os.WriteFile(filepath.Join(dir, CaptureFileName(il)), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	_, err := LoadRun(dir, ov5647Mode6, nil)
	if !errors.Is(err, ErrMissingCalibrationImage) {
		t.Fatalf("got %v, want ErrMissingCalibrationImage", err)
	}
	var me *MissingImageError
	if !errors.As(err, &me) || me.Illumination != IllumGreen {
		t.Fatalf("got %v, want the green image reported", err)
	}
	if want := filepath.Join(dir, "capture_r0_g255_b0.jpg"); me.Path != want {
		t.Errorf("got path %s, want %s", me.Path, want)
	}
}

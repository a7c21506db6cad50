package picamraw

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v2"
)

func testTable() *LensShadingTable {
	t := &LensShadingTable{Channels: 4, Rows: 3, Cols: 5, Gains: make([]uint8, 60)}
	for i := range t.Gains {
		t.Gains[i] = uint8(32 + i*37%224)
	}
	return t
}

func testCalibration() *UnmixingCalibration {
	field := NewMatrixField(2, 3)
	for b := range field.M {
		for e := range field.M[b] {
			field.M[b][e] = math.Pow(-1.1, float64(b+e)) / 3
		}
	}
	field.M[4][8] = 1e300
	field.M[5][0] = -2.5e-7
	white := NewRGBImage(2, 3)
	for i := range white.Pix {
		white.Pix[i] = 0.1 * float64(i+1)
	}
	return &UnmixingCalibration{Matrices: field, White: white}
}

func TestLensShadingTableRoundTrip(t *testing.T) {
	want := testTable()
	var buf bytes.Buffer
	if err := EncodeLensShadingTable(&buf, want, nil); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeLensShadingTable(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("round trip (-want +got):\n%s", d)
	}
}

func TestLensShadingTableKeepsSettings(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.yaml")
	settings := "awb_mode: \"off\"\nlens_shading_table: stale\nexposure_mode: \"off\"\nshutter_speed: 20000\n"
	if err := os.WriteFile(settingsPath, []byte(settings), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "lst.yaml")
	want := testTable()
	if err := SaveLensShadingTable(out, want, settingsPath); err != nil {
		t.Fatal(err)
	}

	merged, err := LoadSettings(out)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, item := range merged {
		keys = append(keys, item.Key.(string))
	}
	wantKeys := []string{"awb_mode", "exposure_mode", "shutter_speed", "lens_shading_table"}
	if d := cmp.Diff(wantKeys, keys); d != "" {
		t.Errorf("keys (-want +got):\n%s", d)
	}
	if merged[2].Value != 20000 {
		t.Errorf("shutter_speed = %v", merged[2].Value)
	}

	got, err := LoadLensShadingTable(out)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("table (-want +got):\n%s", d)
	}
}

func TestSaveLensShadingTableMissingSettings(t *testing.T) {
	dir := t.TempDir()
	err := SaveLensShadingTable(filepath.Join(dir, "lst.yaml"), testTable(), filepath.Join(dir, "nope.yaml"))
	if !errors.Is(err, ErrSerialization) {
		t.Errorf("got %v, want ErrSerialization", err)
	}
}

func TestUnmixingRoundTrip(t *testing.T) {
	want := testCalibration()
	path := filepath.Join(t.TempDir(), "unmixing_matrices.yaml")
	if err := SaveUnmixing(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadUnmixing(path)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("round trip (-want +got):\n%s", d)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"unmixing_matrices", "white_image"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document lacks %s", key)
		}
	}
}

func TestUnmixingWithoutWhite(t *testing.T) {
	want := testCalibration()
	want.White = nil
	var buf bytes.Buffer
	if err := EncodeUnmixing(&buf, want); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "white_image") {
		t.Error("empty white image written")
	}
	got, err := DecodeUnmixing(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("round trip (-want +got):\n%s", d)
	}
}

func TestDecodeMalformed(t *testing.T) {
	lst := []struct {
		name string
		doc  string
	}{
		{"missing", "awb_mode: auto\n"},
		{"out of range", "lens_shading_table: [[[1, 300]]]\n"},
		{"negative", "lens_shading_table: [[[-1, 3]]]\n"},
		{"ragged", "lens_shading_table: [[[1, 2], [3]]]\n"},
		{"ragged channels", "lens_shading_table: [[[1, 2]], [[1, 2], [3, 4]]]\n"},
		{"not yaml", "lens_shading_table: [[[1, 2]\n"},
		{"wrong type", "lens_shading_table: hello\n"},
	}
	for _, tc := range lst {
		t.Run("lst/"+tc.name, func(t *testing.T) {
			if _, err := DecodeLensShadingTable(strings.NewReader(tc.doc)); !errors.Is(err, ErrSerialization) {
				t.Errorf("got %v, want ErrSerialization", err)
			}
		})
	}

	unmix := []struct {
		name string
		doc  string
	}{
		{"missing", "white_image: [[[1, 1, 1]]]\n"},
		{"two rows", "unmixing_matrices: [[[[1, 0, 0], [0, 1, 0]]]]\n"},
		{"short row", "unmixing_matrices: [[[[1, 0, 0], [0, 1], [0, 0, 1]]]]\n"},
		{"ragged blocks", "unmixing_matrices: [[[[1,0,0],[0,1,0],[0,0,1]]], []]\n"},
		{"bad white", "unmixing_matrices: [[[[1,0,0],[0,1,0],[0,0,1]]]]\nwhite_image: [[[1, 1]]]\n"},
		{"not numbers", "unmixing_matrices: [[[[a,0,0],[0,1,0],[0,0,1]]]]\n"},
	}
	for _, tc := range unmix {
		t.Run("unmix/"+tc.name, func(t *testing.T) {
			if _, err := DecodeUnmixing(strings.NewReader(tc.doc)); !errors.Is(err, ErrSerialization) {
				t.Errorf("got %v, want ErrSerialization", err)
			}
		})
	}
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("unmixing_matrices: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadUnmixing(path)
	var se *SerializationError
	if !errors.As(err, &se) || se.Path != path {
		t.Errorf("got %v, want SerializationError for %s", err, path)
	}
	_, err = LoadLensShadingTable(filepath.Join(t.TempDir(), "none.yaml"))
	if !errors.Is(err, ErrSerialization) {
		t.Errorf("got %v, want ErrSerialization", err)
	}
}

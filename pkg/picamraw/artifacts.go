package picamraw

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	lensShadingKey = "lens_shading_table"
)

type lensShadingDocument struct {
	LensShadingTable [][][]int `yaml:"lens_shading_table,flow"`
}

type unmixingDocument struct {
	UnmixingMatrices [][][][]float64 `yaml:"unmixing_matrices,flow"`
	WhiteImage       [][][]float64   `yaml:"white_image,flow,omitempty"`
}

// LoadSettings reads a camera settings document, keeping key order.
func LoadSettings(path string) (yaml.MapSlice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SerializationError{Path: path, Err: err}
	}
	var settings yaml.MapSlice
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, &SerializationError{Path: path, Err: err}
	}
	return settings, nil
}

// EncodeLensShadingTable writes settings followed by the table. Any
// lens_shading_table entry already present in settings is replaced.
func EncodeLensShadingTable(w io.Writer, t *LensShadingTable, settings yaml.MapSlice) error {
	var buf bytes.Buffer
	others := make(yaml.MapSlice, 0, len(settings))
	for _, item := range settings {
		if k, ok := item.Key.(string); ok && k == lensShadingKey {
			continue
		}
		others = append(others, item)
	}
	if len(others) > 0 {
		out, err := yaml.Marshal(others)
		if err != nil {
			return fmt.Errorf("encoding camera settings: %w", err)
		}
		buf.Write(out)
	}

	doc := lensShadingDocument{LensShadingTable: make([][][]int, t.Channels)}
	for ch := range doc.LensShadingTable {
		rows := make([][]int, t.Rows)
		for r := range rows {
			row := make([]int, t.Cols)
			for c := range row {
				row[c] = int(t.At(ch, r, c))
			}
			rows[r] = row
		}
		doc.LensShadingTable[ch] = rows
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding lens shading table: %w", err)
	}
	buf.Write(out)
	_, err = w.Write(buf.Bytes())
	return err
}

// DecodeLensShadingTable reads the lens_shading_table entry of a settings
// document.
func DecodeLensShadingTable(r io.Reader) (*LensShadingTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	var doc lensShadingDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SerializationError{Err: err}
	}
	t, err := tableFromNested(doc.LensShadingTable)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return t, nil
}

func tableFromNested(v [][][]int) (*LensShadingTable, error) {
	if len(v) == 0 || len(v[0]) == 0 || len(v[0][0]) == 0 {
		return nil, fmt.Errorf("%s is missing or empty", lensShadingKey)
	}
	t := &LensShadingTable{Channels: len(v), Rows: len(v[0]), Cols: len(v[0][0])}
	t.Gains = make([]uint8, 0, t.Channels*t.Rows*t.Cols)
	for ch, rows := range v {
		if len(rows) != t.Rows {
			return nil, fmt.Errorf("channel %d has %d rows, want %d", ch, len(rows), t.Rows)
		}
		for r, row := range rows {
			if len(row) != t.Cols {
				return nil, fmt.Errorf("channel %d row %d has %d entries, want %d", ch, r, len(row), t.Cols)
			}
			for c, g := range row {
				if g < 0 || g > 255 {
					return nil, fmt.Errorf("gain %d at (%d,%d,%d) outside [0, 255]", g, ch, r, c)
				}
				t.Gains = append(t.Gains, uint8(g))
			}
		}
	}
	return t, nil
}

// SaveLensShadingTable writes t to path. If settingsPath is not empty, the
// settings it contains are carried over into the output.
func SaveLensShadingTable(path string, t *LensShadingTable, settingsPath string) error {
	var settings yaml.MapSlice
	if settingsPath != "" {
		var err error
		settings, err = LoadSettings(settingsPath)
		if err != nil {
			return err
		}
	}
	return writeFile(path, func(w io.Writer) error {
		return EncodeLensShadingTable(w, t, settings)
	})
}

func LoadLensShadingTable(path string) (*LensShadingTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SerializationError{Path: path, Err: err}
	}
	defer f.Close()
	t, err := DecodeLensShadingTable(f)
	if err != nil {
		err.(*SerializationError).Path = path
		return nil, err
	}
	return t, nil
}

// EncodeUnmixing writes the compensation field and white image.
func EncodeUnmixing(w io.Writer, cal *UnmixingCalibration) error {
	if cal == nil || cal.Matrices == nil {
		return fmt.Errorf("no unmixing matrices to encode")
	}
	f := cal.Matrices
	doc := unmixingDocument{UnmixingMatrices: make([][][][]float64, f.Rows)}
	for r := range doc.UnmixingMatrices {
		row := make([][][]float64, f.Cols)
		for c := range row {
			m := f.At(r, c)
			row[c] = [][]float64{
				{m[0], m[1], m[2]},
				{m[3], m[4], m[5]},
				{m[6], m[7], m[8]},
			}
		}
		doc.UnmixingMatrices[r] = row
	}
	if cal.White != nil {
		doc.WhiteImage = make([][][]float64, cal.White.Rows)
		for r := range doc.WhiteImage {
			row := make([][]float64, cal.White.Cols)
			for c := range row {
				v := cal.White.At(r, c)
				row[c] = []float64{v[0], v[1], v[2]}
			}
			doc.WhiteImage[r] = row
		}
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding unmixing matrices: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// DecodeUnmixing reads a document written by EncodeUnmixing.
func DecodeUnmixing(r io.Reader) (*UnmixingCalibration, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	var doc unmixingDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SerializationError{Err: err}
	}
	field, err := fieldFromNested(doc.UnmixingMatrices)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	cal := &UnmixingCalibration{Matrices: field}
	if doc.WhiteImage != nil {
		cal.White, err = rgbFromNested(doc.WhiteImage)
		if err != nil {
			return nil, &SerializationError{Err: err}
		}
	}
	return cal, nil
}

func fieldFromNested(v [][][][]float64) (*MatrixField, error) {
	if len(v) == 0 || len(v[0]) == 0 {
		return nil, fmt.Errorf("unmixing_matrices is missing or empty")
	}
	f := NewMatrixField(len(v), len(v[0]))
	for r, row := range v {
		if len(row) != f.Cols {
			return nil, fmt.Errorf("matrix row %d has %d blocks, want %d", r, len(row), f.Cols)
		}
		for c, m := range row {
			if len(m) != 3 {
				return nil, fmt.Errorf("block (%d,%d) matrix has %d rows, want 3", r, c, len(m))
			}
			for i, mr := range m {
				if len(mr) != 3 {
					return nil, fmt.Errorf("block (%d,%d) matrix row %d has %d entries, want 3", r, c, i, len(mr))
				}
				copy(f.M[r*f.Cols+c][i*3:i*3+3], mr)
			}
		}
	}
	return f, nil
}

func rgbFromNested(v [][][]float64) (*RGBImage, error) {
	if len(v) == 0 || len(v[0]) == 0 {
		return nil, fmt.Errorf("white_image is empty")
	}
	img := NewRGBImage(len(v), len(v[0]))
	for r, row := range v {
		if len(row) != img.Cols {
			return nil, fmt.Errorf("white image row %d has %d pixels, want %d", r, len(row), img.Cols)
		}
		for c, px := range row {
			if len(px) != 3 {
				return nil, fmt.Errorf("white image pixel (%d,%d) has %d channels, want 3", r, c, len(px))
			}
			img.Set(r, c, [3]float64{px[0], px[1], px[2]})
		}
	}
	return img, nil
}

func SaveUnmixing(path string, cal *UnmixingCalibration) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeUnmixing(w, cal)
	})
}

func LoadUnmixing(path string) (*UnmixingCalibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SerializationError{Path: path, Err: err}
	}
	defer f.Close()
	cal, err := DecodeUnmixing(f)
	if err != nil {
		err.(*SerializationError).Path = path
		return nil, err
	}
	return cal, nil
}

// writeFile creates path, runs write and reports the first error,
// including one from closing the file.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

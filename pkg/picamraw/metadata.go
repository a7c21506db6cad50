package picamraw

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// CameraMetadata holds EXIF tags of a capture and the key=value settings
// the camera firmware stores in the MakerNote.
type CameraMetadata struct {
	Tags      map[string]string
	MakerNote map[string]string
}

func NewCameraMetadata() *CameraMetadata {
	return &CameraMetadata{Tags: make(map[string]string), MakerNote: make(map[string]string)}
}

func (m *CameraMetadata) GetString(key string) string {
	if v, ok := m.Tags[key]; ok {
		return v
	}
	return m.MakerNote[key]
}

func (m *CameraMetadata) GetDouble(key string) (float64, bool) {
	v := strings.TrimSpace(m.GetString(key))
	if v == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(v, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (m *CameraMetadata) GetInt(key string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(m.GetString(key)))
	if err != nil {
		return 0, false
	}
	return i, true
}

func (m *CameraMetadata) CameraModel() string { return m.GetString("Model") }

// ExposureTime is derived from the APEX ShutterSpeedValue, falling back to
// the ExposureTime tag.
func (m *CameraMetadata) ExposureTime() (float64, bool) {
	if ssv, ok := m.GetDouble("ShutterSpeedValue"); ok {
		return 1 / math.Pow(2, ssv), true
	}
	return m.GetDouble("ExposureTime")
}

// AnalogGain and DigitalGain are the firmware's fixed-point ("ag", "dg")
// gains, in units of 1/256.
func (m *CameraMetadata) AnalogGain() (float64, bool) {
	v, ok := m.GetDouble("ag")
	return v / 256, ok
}

func (m *CameraMetadata) DigitalGain() (float64, bool) {
	v, ok := m.GetDouble("dg")
	return v / 256, ok
}

// String formats all tags as aligned key: value lines.
func (m *CameraMetadata) String() string {
	var sb strings.Builder
	writeSorted := func(kv map[string]string) {
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%28s: %s\n", k, kv[k])
		}
	}
	writeSorted(m.Tags)
	if len(m.MakerNote) > 0 {
		sb.WriteString("MakerNote Expanded:\n")
		writeSorted(m.MakerNote)
	}
	if t, ok := m.ExposureTime(); ok {
		sb.WriteString("Derived Values:\n")
		fmt.Fprintf(&sb, "%28s: %.4g\n", "exposure_time", t)
	}
	return sb.String()
}

// ParseMakerNote splits the space-delimited key=value MakerNote string.
// Values may themselves contain spaces: a token without '=' is appended
// to the previous value.
func ParseMakerNote(note string) map[string]string {
	out := make(map[string]string)
	lastKey := ""
	for _, tok := range strings.Split(strings.TrimRight(note, "\x00"), " ") {
		if k, v, ok := strings.Cut(tok, "="); ok {
			lastKey = k
			out[k] = v
		} else if lastKey != "" {
			out[lastKey] += " " + tok
		}
	}
	return out
}

// ReadMetadata reads the EXIF block of a JPEG capture.
func ReadMetadata(filePath string) (*CameraMetadata, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, &SerializationError{Path: filePath, Err: fmt.Errorf("opening capture: %w", err)}
	}
	defer f.Close()
	md, err := readMetadataFromReader(f)
	if err != nil {
		return nil, &SerializationError{Path: filePath, Err: err}
	}
	return md, nil
}

// ReadMetadataFromBytes reads the EXIF block of an in-memory JPEG.
func ReadMetadataFromBytes(data []byte) (*CameraMetadata, error) {
	md, err := readMetadataFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return md, nil
}

func readMetadataFromReader(r io.Reader) (*CameraMetadata, error) {
	x, err := exif.Decode(r)
	// Broken optional sub-IFDs still leave the main tags usable.
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("decoding EXIF: %w", err)
	}

	md := NewCameraMetadata()
	if err := x.Walk(tagCollector(md.Tags)); err != nil {
		return nil, fmt.Errorf("walking EXIF tags: %w", err)
	}
	if note, err := x.Get(exif.MakerNote); err == nil {
		md.MakerNote = ParseMakerNote(string(note.Val))
		delete(md.Tags, string(exif.MakerNote))
	}
	return md, nil
}

// tagCollector stores every decoded tag as text under its EXIF field name.
type tagCollector map[string]string

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	switch name {
	case exif.ExifIFDPointer, exif.GPSInfoIFDPointer, exif.InteroperabilityIFDPointer:
		return nil
	}
	c[string(name)] = formatTag(tag)
	return nil
}

// formatTag renders rationals as "num/den" so GetDouble can divide them
// without rounding.
func formatTag(tag *tiff.Tag) string {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return ""
		}
		return strings.TrimRight(s, "\x00 ")
	case tiff.UndefVal:
		return strings.TrimRight(string(tag.Val), "\x00 ")
	}

	parts := make([]string, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		switch tag.Format() {
		case tiff.RatVal:
			num, den, err := tag.Rat2(i)
			if err != nil {
				return tag.String()
			}
			parts = append(parts, fmt.Sprintf("%d/%d", num, den))
		case tiff.IntVal:
			v, err := tag.Int64(i)
			if err != nil {
				return tag.String()
			}
			parts = append(parts, strconv.FormatInt(v, 10))
		case tiff.FloatVal:
			v, err := tag.Float(i)
			if err != nil {
				return tag.String()
			}
			parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
		default:
			return tag.String()
		}
	}
	return strings.Join(parts, " ")
}

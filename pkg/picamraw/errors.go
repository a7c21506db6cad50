package picamraw

import (
	"errors"
	"fmt"
)

var (
	// ErrInputShape is returned when a frame, channel or image violates a
	// dimension precondition.
	ErrInputShape = errors.New("invalid input shape")

	// ErrMissingCalibrationImage is returned when one of the R, G, B or W
	// calibration exposures is absent or unreadable.
	ErrMissingCalibrationImage = errors.New("missing calibration image")

	// ErrDegenerateCalibration is returned when calibration data cannot be
	// inverted or normalised (singular crosstalk matrix, zero white sample,
	// all-dark channel). The data must be recaptured.
	ErrDegenerateCalibration = errors.New("degenerate calibration data")

	// ErrSerialization is returned for malformed or unreadable artifacts.
	ErrSerialization = errors.New("malformed calibration artifact")
)

// ShapeError describes a dimension precondition violation.
type ShapeError struct {
	What   string
	Rows   int
	Cols   int
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s %dx%d: %s", e.What, e.Rows, e.Cols, e.Reason)
}

func (e *ShapeError) Unwrap() error { return ErrInputShape }

// MissingImageError names the calibration exposure that could not be used.
type MissingImageError struct {
	Illumination Illumination
	Path         string
	Err          error
}

func (e *MissingImageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("calibration run has no %s image", e.Illumination)
	}
	if e.Err != nil {
		return fmt.Sprintf("could not open %s image %s: %v", e.Illumination, e.Path, e.Err)
	}
	return fmt.Sprintf("could not open %s image %s", e.Illumination, e.Path)
}

func (e *MissingImageError) Is(target error) bool { return target == ErrMissingCalibrationImage }

func (e *MissingImageError) Unwrap() error { return e.Err }

// DegenerateError reports the block (row, column) and, where relevant, the
// colour channel at which calibration data became unusable. Channel is -1
// when the failure is not channel specific; BlockRow is -1 when it is not
// block specific.
type DegenerateError struct {
	BlockRow int
	BlockCol int
	Channel  int
	Reason   string
}

func (e *DegenerateError) Error() string {
	if e.BlockRow < 0 {
		return fmt.Sprintf("channel %d: %s", e.Channel, e.Reason)
	}
	if e.Channel >= 0 {
		return fmt.Sprintf("block (%d,%d) channel %d: %s", e.BlockRow, e.BlockCol, e.Channel, e.Reason)
	}
	return fmt.Sprintf("block (%d,%d): %s", e.BlockRow, e.BlockCol, e.Reason)
}

func (e *DegenerateError) Unwrap() error { return ErrDegenerateCalibration }

// SerializationError wraps a failure to read, parse or validate a persisted
// artifact.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", ErrSerialization, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, ErrSerialization, e.Err)
}

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

func (e *SerializationError) Unwrap() error { return e.Err }

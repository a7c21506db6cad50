package picamraw

import (
	"fmt"
	"path/filepath"
)

// CaptureFileName is the name under which the exposure for il is saved in
// a calibration folder, e.g. capture_r255_g0_b0.jpg for red.
func CaptureFileName(il Illumination) string {
	led := il.LED()
	return fmt.Sprintf("capture_r%d_g%d_b%d.jpg", led[0], led[1], led[2])
}

// LoadRun reads the W, R, G and B raw captures from folder and reduces
// each to a calibration image.
func LoadRun(folder string, rp *RawReadParams, bp *BinningParams) (CalibrationRun, error) {
	run := make(CalibrationRun, 4)
	for _, il := range []Illumination{IllumWhite, IllumRed, IllumGreen, IllumBlue} {
		path := filepath.Join(folder, CaptureFileName(il))
		frame, err := ReadRaw(path, rp)
		if err != nil {
			return nil, &MissingImageError{Illumination: il, Path: path, Err: err}
		}
		img, err := CalibrationImageFromFrame(frame, bp)
		if err != nil {
			return nil, fmt.Errorf("binning %s: %w", path, err)
		}
		run[il] = img
	}
	return run, nil
}

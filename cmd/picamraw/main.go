package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	pr "github.com/eli-silver/microfluidics/pkg/picamraw"
)

const usage = `usage: picamraw <command> [flags]

commands:
  lst <white.jpg>                     build a lens shading table
  unmix <folder|matrices.yaml>        compute colour unmixing matrices
  apply <calibration> <image>         unmix an image
  extract <capture.jpg>...            dump raw data and metadata of captures`

// usageError is reported with exit status 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(os.Stderr, ue.msg)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return usageError{usage}
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "lst":
		return runLST(rest, stdout)
	case "unmix":
		return runUnmix(rest, stdout)
	case "apply":
		return runApply(rest, stdout)
	case "extract":
		return runExtract(rest, stdout)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return usageError{fmt.Sprintf("unknown command %q\n%s", cmd, usage)}
	}
}

// newFlagSet returns a flag set whose errors are returned, not fatal.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("picamraw "+name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseFlags accepts flags both before and after positional arguments.
func parseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, usageError{fmt.Sprintf("%s: %v", fs.Name(), err)}
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// rawFlags registers the sensor selection shared by commands reading raw
// captures.
func rawFlags(fs *flag.FlagSet) *pr.RawReadParams {
	p := pr.NewRawReadParams()
	fs.StringVar(&p.Sensor, "sensor", p.Sensor, "sensor model (IMX219 or OV5647)")
	fs.IntVar(&p.SensorMode, "mode", p.SensorMode, "sensor mode of the capture")
	return p
}

type unmixFlags struct {
	target    string
	smoothing float64
	debug     string
	fs        *flag.FlagSet
}

func (f *unmixFlags) register(fs *flag.FlagSet) {
	f.fs = fs
	fs.StringVar(&f.target, "target", "centre", "colour target: centre or rgb")
	fs.Float64Var(&f.smoothing, "smoothing", 0, "Gaussian smoothing sigma in blocks (0 disables)")
}

// targetSet reports whether -target was given on the command line.
func (f *unmixFlags) targetSet() bool {
	set := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "target" {
			set = true
		}
	})
	return set
}

func (f *unmixFlags) params() (*pr.UnmixParams, error) {
	p := pr.NewUnmixParams()
	target, err := pr.ParseColourTarget(f.target)
	if err != nil {
		return nil, usageError{err.Error()}
	}
	p.Target = target
	if f.smoothing < 0 {
		return nil, usageError{fmt.Sprintf("smoothing must not be negative, got %g", f.smoothing)}
	}
	if f.smoothing > 0 {
		sigma := f.smoothing
		p.Smoothing = &sigma
	}
	p.SaveIntermediateFilesPath = f.debug
	return p, nil
}

func runLST(args []string, stdout io.Writer) error {
	fs := newFlagSet("lst")
	output := fs.String("output", "lst.yaml", "output YAML file")
	settings := fs.String("settings", "", "camera settings YAML to merge the table into")
	preview := fs.String("preview", "", "write a heat map of the table to this JPEG")
	rp := rawFlags(fs)
	pos, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError{"usage: picamraw lst <white.jpg> [-output f.yaml] [-settings in.yaml] [-preview p.jpg]"}
	}

	fmt.Fprintf(stdout, "Loading: %s\n", pos[0])
	frame, err := pr.ReadRaw(pos[0], rp)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Raw frame: %d x %d, bayer order %d\n", frame.Width, frame.Height, frame.Order)

	channels, err := pr.SplitChannels(frame)
	if err != nil {
		return err
	}
	params := pr.NewLensShadingParams()
	table, err := pr.BuildLensShadingTable(channels, params)
	if err != nil {
		return fmt.Errorf("building lens shading table: %w", err)
	}
	if err := pr.SaveLensShadingTable(*output, table, *settings); err != nil {
		return err
	}
	lo, hi := gainRange(table)
	fmt.Fprintf(stdout, "Lens shading table: %d x %d x %d, gains %d..%d -> %s\n",
		table.Channels, table.Rows, table.Cols, lo, hi, *output)

	if *preview != "" {
		if err := pr.RenderShadingOverlay(table, params, *preview); err != nil {
			return fmt.Errorf("rendering preview: %w", err)
		}
		fmt.Fprintf(stdout, "Preview: %s\n", *preview)
	}
	return nil
}

func gainRange(t *pr.LensShadingTable) (uint8, uint8) {
	lo, hi := uint8(255), uint8(0)
	for _, g := range t.Gains {
		lo = min(lo, g)
		hi = max(hi, g)
	}
	return lo, hi
}

func runUnmix(args []string, stdout io.Writer) error {
	fs := newFlagSet("unmix")
	output := fs.String("output", "unmixing_matrices.yaml", "output YAML file")
	var uf unmixFlags
	uf.register(fs)
	fs.StringVar(&uf.debug, "debug", "", "existing directory for intermediate files")
	rp := rawFlags(fs)
	pos, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError{"usage: picamraw unmix <folder|matrices.yaml> [-output f.yaml] [-target centre|rgb] [-smoothing sigma] [-debug dir]"}
	}
	p, err := uf.params()
	if err != nil {
		return err
	}

	start := time.Now()
	cal, err := loadCalibration(pos[0], rp, p, uf.targetSet(), stdout)
	if err != nil {
		return err
	}
	if err := pr.SaveUnmixing(*output, cal); err != nil {
		return err
	}

	f := cal.Matrices
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "=== Unmixing Matrices (%.1fs) ===\n", time.Since(start).Seconds())
	fmt.Fprintf(stdout, "  Blocks:          %d x %d\n", f.Rows, f.Cols)
	fmt.Fprintf(stdout, "  Target:          %s\n", p.Target)
	if p.Smoothing != nil {
		fmt.Fprintf(stdout, "  Smoothing:       %.2f blocks\n", *p.Smoothing)
	}
	centre := f.At(f.Rows/2, f.Cols/2)
	fmt.Fprintf(stdout, "  Centre matrix:   %s\n", formatMat3(centre))
	fmt.Fprintf(stdout, "  Written to:      %s\n", *output)
	fmt.Fprintln(stdout, "==============================")
	return nil
}

// loadCalibration computes the matrices from a folder of captures, or
// loads a saved calibration and re-smooths it if asked to. A saved
// calibration already has its colour target baked in, so asking for one
// is a usage error.
func loadCalibration(path string, rp *pr.RawReadParams, p *pr.UnmixParams, targetSet bool, stdout io.Writer) (*pr.UnmixingCalibration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if targetSet {
			return nil, usageError{fmt.Sprintf("-target only applies to a folder of captures, %s is a saved calibration", path)}
		}
		fmt.Fprintf(stdout, "Loading calibration: %s\n", path)
		cal, err := pr.LoadUnmixing(path)
		if err != nil {
			return nil, err
		}
		if p.Smoothing != nil {
			cal.Matrices, err = pr.SmoothField(cal.Matrices, *p.Smoothing)
			if err != nil {
				return nil, err
			}
		}
		return cal, nil
	}

	fmt.Fprintf(stdout, "Loading calibration captures from %s\n", path)
	run, err := pr.LoadRun(path, rp, pr.NewBinningParams())
	if err != nil {
		return nil, err
	}
	field, err := pr.ComputeMatrices(run, p)
	if err != nil {
		return nil, err
	}
	return &pr.UnmixingCalibration{Matrices: field, White: run[pr.IllumWhite]}, nil
}

func formatMat3(m pr.Mat3) string {
	return fmt.Sprintf("[%.3f %.3f %.3f; %.3f %.3f %.3f; %.3f %.3f %.3f]",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}

func runApply(args []string, stdout io.Writer) error {
	fs := newFlagSet("apply")
	output := fs.String("output", "", "output PNG (default <image>_unmixed.png)")
	interpName := fs.String("interp", "bilinear", "field resampling: nearest or bilinear")
	var uf unmixFlags
	uf.register(fs)
	rp := rawFlags(fs)
	pos, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return usageError{"usage: picamraw apply <calibration> <image> [-output out.png] [-target centre|rgb] [-smoothing sigma] [-interp nearest|bilinear]"}
	}
	interp, err := pr.ParseInterpolation(*interpName)
	if err != nil {
		return usageError{err.Error()}
	}
	p, err := uf.params()
	if err != nil {
		return err
	}
	outPath := *output
	if outPath == "" {
		outPath = fileRoot(pos[1]) + "_unmixed.png"
	}

	cal, err := loadCalibration(pos[0], rp, p, uf.targetSet(), stdout)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Loading: %s\n", pos[1])
	w, h, pix, err := readRGB8(pos[1])
	if err != nil {
		return err
	}
	img := pr.NewRGBImage(h, w)
	for i, v := range pix {
		img.Pix[i] = float64(v)
	}

	start := time.Now()
	out, err := pr.Apply(cal.Matrices, img, interp)
	if err != nil {
		return err
	}
	outPix := make([]uint8, len(out.Pix))
	for i, v := range out.Pix {
		outPix[i] = uint8(math.Round(min(max(v, 0), 255)))
	}
	if err := writeRGB8(outPath, w, h, outPix); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Unmixed %d x %d image (%s, %.1fs) -> %s\n", w, h, interp, time.Since(start).Seconds(), outPath)
	return nil
}

func runExtract(args []string, stdout io.Writer) error {
	fs := newFlagSet("extract")
	rp := rawFlags(fs)
	pos, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(pos) == 0 {
		return usageError{"usage: picamraw extract <capture.jpg>..."}
	}
	for _, path := range pos {
		if err := extractOne(path, rp, stdout); err != nil {
			return err
		}
	}
	return nil
}

func extractOne(path string, rp *pr.RawReadParams, stdout io.Writer) error {
	fmt.Fprintf(stdout, "Loading: %s\n", path)
	root := fileRoot(path)

	md, err := pr.ReadMetadata(path)
	if err != nil {
		fmt.Fprintf(stdout, "  no metadata: %v\n", err)
	} else if err := os.WriteFile(root+"_exif.txt", []byte(md.String()), 0644); err != nil {
		return err
	}

	frame, err := pr.ReadRaw(path, rp)
	if err != nil {
		return err
	}
	planes, err := frame.Planes()
	if err != nil {
		return err
	}
	n := frame.Width * frame.Height
	pix16 := make([]uint16, 3*n)
	pix8 := make([]uint8, 3*n)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			v := uint16(planes[c].Data[i])
			// 10-bit samples, scaled to fill each output depth
			pix16[3*i+c] = v << 6
			pix8[3*i+c] = uint8(v >> 2)
		}
	}
	if err := writeRGB16(root+"_raw16.tif", frame.Width, frame.Height, pix16); err != nil {
		return err
	}
	if err := writeRGB8(root+"_raw8.png", frame.Width, frame.Height, pix8); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "  %d x %d raw frame -> %s_raw16.tif, %s_raw8.png\n", frame.Width, frame.Height, root, root)
	return nil
}

func fileRoot(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

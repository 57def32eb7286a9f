package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"latticevol/internal/models"
	"latticevol/pkg/interpolation"
	"latticevol/pkg/isosurface"
	"latticevol/pkg/stats"
	"latticevol/pkg/stl"
	"latticevol/pkg/vtk"
)

// ErrFrameName is returned when a file passed to InterpolatePair does not
// follow the <prefix>00.vtk naming used for key frames.
var ErrFrameName = errors.New("pipeline: key frame name must end in 00.vtk")

const keyFrameSuffix = "00.vtk"

// outputPath places name in dir, or leaves it next to its source when dir
// is empty.
func outputPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, filepath.Base(name))
}

// SplitName returns the file a split field with index i is written to.
// Everything after the first dot of the base name is dropped.
func SplitName(path string, i int) string {
	dir, base := filepath.Split(path)
	if dot := strings.Index(base, "."); dot >= 0 {
		base = base[:dot]
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%04d0000.vtk", base, i))
}

// Split writes every field of the file at path whose name matches pattern
// to its own single-field file, renamed to the default field name. The
// pattern is anchored at the start of the field name. Output files are
// numbered consecutively over the matching fields and returned in field
// order.
func Split(path, pattern, outDir string) ([]string, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, errors.Wrapf(err, "split pattern %q", pattern)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	r := vtk.NewReader(f)
	for {
		h, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return out, errors.Wrap(err, path)
		}
		if !re.MatchString(h.Scalars) {
			continue
		}
		v, err := r.ReadVolume()
		if err != nil {
			return out, errors.Wrap(err, path)
		}
		v.Field = vtk.DefaultField

		name := outputPath(outDir, SplitName(path, len(out)))
		if err := vtk.WriteFile(name, v); err != nil {
			return out, err
		}
		out = append(out, name)
	}
	return out, nil
}

// FrameName returns the file frame i between a key frame and its successor
// is written to.
func FrameName(keyFrame string, i int) string {
	return fmt.Sprintf("%s%02d.vtk", strings.TrimSuffix(keyFrame, keyFrameSuffix), i)
}

// InterpolatePair writes frames linearly interpolated files between the
// key frames f1 and f2. The payloads are streamed, so neither input is
// held in memory. The frames take f1's header.
func InterpolatePair(f1, f2 string, frames int, outDir string) ([]string, error) {
	if !strings.HasSuffix(f1, keyFrameSuffix) || !strings.HasSuffix(f2, keyFrameSuffix) {
		return nil, errors.Wrapf(ErrFrameName, "%s, %s", f1, f2)
	}
	if frames <= 0 {
		return nil, nil
	}

	a, err := os.Open(f1)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	b, err := os.Open(f2)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	ra, rb := vtk.NewReader(a), vtk.NewReader(b)
	ha, err := ra.Next()
	if err != nil {
		return nil, errors.Wrap(err, f1)
	}
	hb, err := rb.Next()
	if err != nil {
		return nil, errors.Wrap(err, f2)
	}
	if ha.Dimensions != hb.Dimensions {
		return nil, errors.Wrapf(interpolation.ErrDimensionMismatch,
			"%s is %v, %s is %v", f1, ha.Dimensions, f2, hb.Dimensions)
	}
	pa, err := ra.Payload()
	if err != nil {
		return nil, err
	}
	pb, err := rb.Payload()
	if err != nil {
		return nil, err
	}

	names := make([]string, frames)
	files := make([]*os.File, 0, frames)
	outs := make([]io.Writer, frames)
	bufs := make([]*bufio.Writer, frames)
	done := false
	// Partially written frames are removed on failure.
	defer func() {
		for i, f := range files {
			f.Close()
			if !done {
				os.Remove(names[i])
			}
		}
	}()
	for i := range names {
		names[i] = outputPath(outDir, FrameName(f1, i+1))
		f, err := os.Create(names[i])
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		bufs[i] = bufio.NewWriter(f)
		if err := vtk.WriteHeader(bufs[i], ha); err != nil {
			return nil, errors.Wrap(err, names[i])
		}
		outs[i] = bufs[i]
	}

	if err := interpolation.BetweenStreams(pa, pb, ha.Points(), outs); err != nil {
		return nil, errors.Wrapf(err, "%s -> %s", f1, f2)
	}
	for i, w := range bufs {
		if err := w.Flush(); err != nil {
			return nil, errors.Wrap(err, names[i])
		}
	}
	for i, f := range files {
		if err := f.Close(); err != nil {
			return nil, errors.Wrap(err, names[i])
		}
	}
	done = true
	return names, nil
}

// ResampleName returns the file a resampled copy of path is written to.
func ResampleName(path string, dims [3]int) string {
	return strings.TrimSuffix(path, ".vtk") + "." + interpolation.FormatDims(dims) + ".vtk"
}

// ResampleFile resamples the first field of path onto dims and writes it
// next to the source (or into outDir).
func ResampleFile(path string, dims [3]int, workers int, outDir string) (string, error) {
	v, err := vtk.ReadFile(path)
	if err != nil {
		return "", err
	}
	r, err := interpolation.Resampler{Workers: workers}.Resample(v, dims)
	if err != nil {
		return "", errors.Wrap(err, path)
	}
	name := outputPath(outDir, ResampleName(path, dims))
	return name, vtk.WriteFile(name, r)
}

// SurfaceOptions controls how isosurfaces are extracted and written.
type SurfaceOptions struct {
	// UseGeometry places vertices with the file's origin and spacing
	// instead of grid indices
	UseGeometry bool

	// Grouped writes through model3d instead of the plain STL writer
	Grouped bool

	// WriteLow and WriteHigh select the levels that are extracted
	WriteLow  bool
	WriteHigh bool

	// Workers bounds the extraction goroutines; 0 means one per CPU
	Workers int

	// OutputDir receives the STL files; empty means next to the source
	OutputDir string
}

// Surface describes one extracted isosurface.
type Surface struct {
	Source    string
	Kind      string
	Level     float64
	Triangles int

	// Path is empty when the surface had no triangles and nothing was written
	Path string
}

// SurfaceName returns the STL file for the given kind ("low" or "high").
func SurfaceName(path, kind string) string {
	return strings.TrimSuffix(path, ".vtk") + "." + kind + ".stl"
}

// ExtractFile extracts the isosurfaces of path at the levels in iso and
// writes each non-empty one as STL.
func ExtractFile(path string, iso stats.Result, opts SurfaceOptions) ([]Surface, error) {
	v, err := vtk.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ExtractVolume(v, path, iso, opts)
}

// ExtractVolume is ExtractFile for a volume already in memory. path names
// the source the STL file names are derived from.
func ExtractVolume(v *models.Volume, path string, iso stats.Result, opts SurfaceOptions) ([]Surface, error) {
	if err := v.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	var levels []Surface
	if opts.WriteLow {
		levels = append(levels, Surface{Source: path, Kind: "low", Level: iso.IsoLow})
	}
	if opts.WriteHigh {
		levels = append(levels, Surface{Source: path, Kind: "high", Level: iso.IsoHigh})
	}

	for i := range levels {
		s := &levels[i]
		e := isosurface.New(v, s.Level)
		if opts.UseGeometry {
			e.UseGeometry()
		}
		if opts.Workers > 0 {
			e.SetWorkers(opts.Workers)
		}
		tris := e.Triangles()
		s.Triangles = len(tris)
		if len(tris) == 0 {
			continue
		}

		name := outputPath(opts.OutputDir, SurfaceName(path, s.Kind))
		var err error
		if opts.Grouped {
			err = stl.SaveGroupedSTL(name, tris)
		} else {
			err = stl.SaveSurface(name, tris)
		}
		if err != nil {
			return levels[:i], errors.Wrap(err, name)
		}
		s.Path = name
	}
	return levels, nil
}

// MakeVolume builds the size³ point charge field
// 1/sqrt(0.001 + (h-x)² + (h-y)² + (h-z)²) with h = size/2.
func MakeVolume(size int) *models.Volume {
	v := models.NewVolume([3]int{size, size, size})
	h := float64(size) / 2
	for z := 0; z < size; z++ {
		dz := h - float64(z)
		for y := 0; y < size; y++ {
			dy := h - float64(y)
			for x := 0; x < size; x++ {
				dx := h - float64(x)
				v.Set(x, y, z, float32(1/math.Sqrt(0.001+dx*dx+dy*dy+dz*dz)))
			}
		}
	}
	v.Field = vtk.DefaultField
	return v
}

// MakeFile writes a file holding fields copies of the point charge field,
// named slice0, slice1 and so on.
func MakeFile(path string, size, fields int) error {
	if size < 1 || fields < 1 {
		return errors.Errorf("pipeline: cannot make %d fields of size %d", fields, size)
	}
	base := MakeVolume(size)
	base.Title = filepath.Base(path)
	vols := make([]*models.Volume, fields)
	for i := range vols {
		vols[i] = &models.Volume{
			Title:   base.Title,
			Field:   fmt.Sprintf("slice%d", i),
			Dims:    base.Dims,
			Origin:  base.Origin,
			Spacing: base.Spacing,
			Data:    base.Data,
		}
	}
	return vtk.WriteFile(path, vols...)
}

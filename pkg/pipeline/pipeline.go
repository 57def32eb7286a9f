// Package pipeline sequences the file-level stages of latticevol: making or
// globbing the inputs, splitting multi-field files, interpolating between
// key frames, resampling and extracting isosurfaces.
package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"latticevol/internal/hash"
	"latticevol/pkg/config"
	"latticevol/pkg/interpolation"
	"latticevol/pkg/stats"
)

// Params holds the stage configuration of a run.
type Params struct {
	// Inputs are file names or glob patterns. When MakeSize is set the
	// first entry is the file that gets created.
	Inputs []string

	// MakeSize, when positive, writes a MakeSize³ point charge file
	// holding MakeFields fields instead of reading existing inputs.
	MakeSize   int
	MakeFields int

	// SplitPattern, when set, splits the single input file into one file
	// per matching field.
	SplitPattern string

	// Frames is the number of frames interpolated between consecutive
	// files; 0 skips interpolation.
	Frames int

	// Resample is the target grid ("NXxNYxNZ"); empty skips resampling.
	Resample string

	// Surfaces enables isosurface extraction.
	Surfaces bool
	Surface  SurfaceOptions

	// TargetSamples sizes the strided sample set used to pick iso levels.
	TargetSamples int

	// NumCores bounds the goroutines used for resampling and extraction.
	NumCores int

	// OutputDir receives every derived file; empty means next to its source.
	OutputDir string

	// Log receives progress; nil means the logrus standard logger.
	Log logrus.FieldLogger
}

// ParamsFromConfig fills the stage settings from cfg. Inputs and the make
// settings are left for the caller.
func ParamsFromConfig(cfg *config.Config) *Params {
	return &Params{
		Frames:   cfg.Interpolation.Frames,
		Resample: cfg.Interpolation.Resample,
		Surfaces: cfg.Surface.WriteLow || cfg.Surface.WriteHigh,
		Surface: SurfaceOptions{
			UseGeometry: cfg.Surface.UseGeometry,
			Grouped:     cfg.Surface.Grouped,
			WriteLow:    cfg.Surface.WriteLow,
			WriteHigh:   cfg.Surface.WriteHigh,
			Workers:     cfg.Processing.NumCores,
			OutputDir:   cfg.Output.Dir,
		},
		TargetSamples: cfg.Processing.TargetSamples,
		NumCores:      cfg.Processing.NumCores,
		OutputDir:     cfg.Output.Dir,
	}
}

// Runner carries a file list through the configured stages.
//
// A stage processes every file it is given. A file that fails is logged
// and dropped while the rest of the batch continues; a stage only fails
// when it is left with no files at all.
type Runner struct {
	params *Params
	log    logrus.FieldLogger

	// files is the working set handed from one stage to the next
	files []string

	// stats is the analysis of the file the iso levels were taken from
	stats *stats.Result

	surfaces []Surface
}

// NewRunner creates a runner for params.
func NewRunner(params *Params) *Runner {
	log := params.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{params: params, log: log}
}

// Files returns the working set after the last stage that ran.
func (r *Runner) Files() []string { return r.files }

// Stats returns the analysis used for the iso levels, or nil if no surface
// stage ran.
func (r *Runner) Stats() *stats.Result { return r.stats }

// Surfaces returns every surface extracted so far.
func (r *Runner) Surfaces() []Surface { return r.surfaces }

// Process runs the complete pipeline.
func (r *Runner) Process() error {
	if r.params.OutputDir != "" {
		if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}

	r.log.Info("Step 1: Collecting inputs")
	if err := r.collect(); err != nil {
		return err
	}

	if r.params.SplitPattern != "" {
		r.log.Info("Step 2: Splitting fields")
		if len(r.files) != 1 {
			return errors.Errorf("pipeline: split needs exactly one input file, got %d", len(r.files))
		}
		files, err := Split(r.files[0], r.params.SplitPattern, r.params.OutputDir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.Errorf("pipeline: no field of %s matches %q", r.files[0], r.params.SplitPattern)
		}
		r.log.WithFields(logrus.Fields{"file": r.files[0], "fields": len(files)}).Info("split")
		r.files = files
	}

	if r.params.Frames > 0 {
		r.log.Info("Step 3: Interpolating frames")
		files, err := r.Interpolate(r.files, r.params.Frames)
		if err != nil {
			return err
		}
		r.files = files
	}

	if r.params.Resample != "" {
		r.log.Info("Step 4: Resampling")
		dims, err := interpolation.ParseDims(r.params.Resample)
		if err != nil {
			return err
		}
		files, err := r.ResampleFiles(r.files, dims)
		if err != nil {
			return err
		}
		r.files = files
	}

	if r.params.Surfaces {
		r.log.Info("Step 5: Extracting isosurfaces")
		if _, err := r.ExtractSurfaces(r.files); err != nil {
			return err
		}
	}

	r.log.WithField("files", len(r.files)).Info("Pipeline completed successfully")
	return nil
}

// collect fills the working set from the make settings or the input globs.
func (r *Runner) collect() error {
	if len(r.params.Inputs) == 0 {
		return errors.New("pipeline: no inputs")
	}
	if r.params.MakeSize > 0 {
		path := r.params.Inputs[0]
		fields := r.params.MakeFields
		if fields < 1 {
			fields = 1
		}
		if err := MakeFile(path, r.params.MakeSize, fields); err != nil {
			return err
		}
		r.log.WithFields(logrus.Fields{
			"file":   path,
			"size":   r.params.MakeSize,
			"fields": fields,
			"hash":   hash.Volume(MakeVolume(r.params.MakeSize)),
		}).Info("made point charge volume")
		r.files = []string{path}
		return nil
	}

	files, err := Expand(r.params.Inputs)
	if err != nil {
		return err
	}
	r.files = files
	r.log.WithField("files", len(files)).Debug("collected inputs")
	return nil
}

// Expand resolves file names and glob patterns into a sorted list without
// duplicates. A pattern that matches nothing is an error.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", p)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("pipeline: no files match %q", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Interpolate sorts files and interpolates frames files between each
// consecutive pair. It returns the inputs and the new frames, sorted.
func (r *Runner) Interpolate(files []string, frames int) ([]string, error) {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	out := append([]string(nil), sorted...)
	for i := 0; i+1 < len(sorted); i++ {
		f1, f2 := sorted[i], sorted[i+1]
		names, err := InterpolatePair(f1, f2, frames, r.params.OutputDir)
		if err != nil {
			r.log.WithFields(logrus.Fields{"file": f1, "next": f2}).WithError(err).Warn("skipping pair")
			continue
		}
		r.log.WithFields(logrus.Fields{"file": f1, "next": f2, "frames": len(names)}).Debug("interpolated")
		out = append(out, names...)
	}
	sort.Strings(out)
	return out, nil
}

// ResampleFiles resamples every file onto dims and returns the new files.
func (r *Runner) ResampleFiles(files []string, dims [3]int) ([]string, error) {
	var out []string
	for _, f := range files {
		name, err := ResampleFile(f, dims, r.params.NumCores, r.params.OutputDir)
		if err != nil {
			r.log.WithField("file", f).WithError(err).Warn("skipping file")
			continue
		}
		r.log.WithFields(logrus.Fields{"file": f, "output": name}).Debug("resampled")
		out = append(out, name)
	}
	if len(out) == 0 && len(files) > 0 {
		return nil, errors.Errorf("pipeline: none of %d files could be resampled", len(files))
	}
	return out, nil
}

// ExtractSurfaces picks the iso levels from the middle file of the sorted
// list and extracts them from every file.
func (r *Runner) ExtractSurfaces(files []string) ([]Surface, error) {
	if len(files) == 0 {
		return nil, errors.New("pipeline: no files to extract surfaces from")
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	mid := sorted[len(sorted)/2]
	res, err := r.analyze(mid)
	if err != nil {
		return nil, err
	}
	r.stats = &res
	r.log.WithFields(logrus.Fields{
		"file": mid,
		"min":  res.Minimum,
		"max":  res.Maximum,
		"low":  res.IsoLow,
		"high": res.IsoHigh,
	}).Info("iso levels")

	opts := r.params.Surface
	if opts.OutputDir == "" {
		opts.OutputDir = r.params.OutputDir
	}
	if opts.Workers == 0 {
		opts.Workers = r.params.NumCores
	}

	var out []Surface
	failed := 0
	for _, f := range sorted {
		surfaces, err := ExtractFile(f, res, opts)
		if err != nil {
			failed++
			r.log.WithField("file", f).WithError(err).Warn("skipping file")
			continue
		}
		for _, s := range surfaces {
			r.log.WithFields(logrus.Fields{
				"file":      f,
				"level":     s.Level,
				"triangles": s.Triangles,
				"output":    s.Path,
			}).Debug(s.Kind + " surface")
		}
		out = append(out, surfaces...)
	}
	if failed == len(sorted) {
		return nil, errors.Errorf("pipeline: no surfaces could be extracted from %d files", failed)
	}
	r.surfaces = append(r.surfaces, out...)
	return out, nil
}

// analyze runs the streaming analyzer over the first field of path with
// the configured sample target.
func (r *Runner) analyze(path string) (stats.Result, error) {
	target := r.params.TargetSamples
	if target <= 0 {
		target = stats.TargetSamples
	}
	return stats.AnalyzeFileTarget(path, target)
}

// Package stats derives display ranges and isosurface thresholds from a
// single streaming pass over a scalar field.
package stats

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"latticevol/internal/models"
	"latticevol/pkg/vtk"
)

// TargetSamples is the approximate number of evenly strided values kept in
// the sample set.
const TargetSamples = 100

// ErrEmpty is returned when no values were seen.
var ErrEmpty = errors.New("stats: no samples")

// Result holds the range of a field and a suggested pair of isosurface
// levels.
type Result struct {
	Name    string
	Minimum float64
	Maximum float64
	IsoLow  float64
	IsoHigh float64

	// Samples is the sorted sample set the levels were picked from
	Samples []float64
}

// Iso returns the threshold pair as (low, high).
func (r Result) Iso() (float64, float64) { return r.IsoLow, r.IsoHigh }

// Summary returns the mean and standard deviation of the sample set.
func (r Result) Summary() (mean, std float64) {
	if len(r.Samples) < 2 {
		if len(r.Samples) == 1 {
			return r.Samples[0], 0
		}
		return 0, 0
	}
	return stat.MeanStdDev(r.Samples, nil)
}

// Analyzer accumulates values chunk by chunk.
type Analyzer struct {
	stride   int
	seen     int
	min, max float64
	samples  []float64
}

// NewAnalyzer prepares an analyzer for a field of n values that keeps
// roughly target strided samples.
func NewAnalyzer(n, target int) *Analyzer {
	stride := 1
	if target > 0 && n/target > 1 {
		stride = n / target
	}
	return &Analyzer{
		stride:  stride,
		samples: make([]float64, 0, 2*target+8),
	}
}

// Add feeds the next run of values.
func (a *Analyzer) Add(chunk []float32) {
	for _, f := range chunk {
		p := float64(f)
		if a.seen == 0 || p < a.min {
			a.min = p
			a.samples = append(a.samples, p)
		}
		if a.seen == 0 || p > a.max {
			a.max = p
			a.samples = append(a.samples, p)
		}
		if a.seen%a.stride == 0 {
			a.samples = append(a.samples, p)
		}
		a.seen++
	}
}

// Count returns the number of values seen so far.
func (a *Analyzer) Count() int { return a.seen }

// Result sorts the sample set and applies the threshold policy.
func (a *Analyzer) Result() (Result, error) {
	if a.seen == 0 {
		return Result{}, ErrEmpty
	}
	s := make([]float64, len(a.samples))
	copy(s, a.samples)
	sort.Float64s(s)

	r := Result{Minimum: a.min, Maximum: a.max, Samples: s}
	r.IsoLow, r.IsoHigh = isoLevels(a.min, a.max, s)
	return r, nil
}

// isoLevels picks levels that enclose roughly the extremal third of the
// field by value.
func isoLevels(min, max float64, s []float64) (float64, float64) {
	n := len(s)
	switch {
	case min*max >= 0 && max > 0:
		return 0, s[2*n/3]
	case min*max >= 0 && min < 0:
		return s[n/3], 0
	default:
		return s[n/6], -s[n/6]
	}
}

// Analyze runs the analyzer over an in-memory volume.
func Analyze(v *models.Volume) (Result, error) {
	a := NewAnalyzer(len(v.Data), TargetSamples)
	a.Add(v.Data)
	r, err := a.Result()
	if err != nil {
		return r, err
	}
	r.Name = v.Title
	return r, nil
}

// AnalyzeFile streams the first field of the file at path without loading
// it into memory.
func AnalyzeFile(path string) (Result, error) {
	return AnalyzeFileTarget(path, TargetSamples)
}

// AnalyzeFileTarget is AnalyzeFile with a custom sample target.
func AnalyzeFileTarget(path string, target int) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	r := vtk.NewReader(f)
	h, err := r.Next()
	if err != nil {
		return Result{}, errors.Wrap(err, path)
	}
	a := NewAnalyzer(h.Points(), target)
	err = r.Scan(func(_ int, chunk []float32) error {
		a.Add(chunk)
		return nil
	})
	if err != nil {
		return Result{}, errors.Wrap(err, path)
	}
	res, err := a.Result()
	if err != nil {
		return res, errors.Wrap(err, path)
	}
	res.Name = h.Title
	return res, nil
}

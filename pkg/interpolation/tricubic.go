// Package interpolation builds new volumes from existing ones: tricubic
// resampling onto a different grid and linear blending between frames.
package interpolation

import (
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"latticevol/internal/models"
)

// ErrInvalidDimensions is returned for target dimensions that are not all
// positive.
var ErrInvalidDimensions = errors.New("interpolation: invalid dimensions")

// CubicKernel evaluates the cubic through samples a, b, c, d taken at
// relative positions -1, 0, 1, 2, at offset t from b.
func CubicKernel(t, a, b, c, d float64) float64 {
	t2 := t * t
	a0 := d - c - a + b
	a1 := a - b - a0
	a2 := c - a
	a3 := b
	return t*t2*a0 + t2*a1 + t*a2 + a3
}

// Resampler maps volumes onto grids of a different resolution.
type Resampler struct {
	// Workers is the number of goroutines sharing the x planes of the
	// output. Zero means runtime.NumCPU().
	Workers int
}

// Resample maps v onto a grid of dims samples using periodic tricubic
// interpolation.
func Resample(v *models.Volume, dims [3]int) (*models.Volume, error) {
	return Resampler{}.Resample(v, dims)
}

// axisTaps holds, for every target index along one axis, the four wrapped
// source indices and the fractional offset.
type axisTaps struct {
	idx [][4]int
	t   []float64
}

func newAxisTaps(src, dst int) axisTaps {
	a := axisTaps{idx: make([][4]int, dst), t: make([]float64, dst)}
	for i := 0; i < dst; i++ {
		pos := float64(src*i) / float64(dst)
		i0 := int(pos)
		a.t[i] = pos - float64(i0)
		for k := 0; k < 4; k++ {
			a.idx[i][k] = wrap(i0-1+k, src)
		}
	}
	return a
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Resample maps v onto a grid of dims samples. Origin, spacing, title and
// field name are carried over unchanged. v is not modified.
func (r Resampler) Resample(v *models.Volume, dims [3]int) (*models.Volume, error) {
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "target %dx%dx%d", dims[0], dims[1], dims[2])
	}
	if err := v.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidDimensions, err.Error())
	}

	out := v.Geometry()
	out.Dims = dims
	out.Data = make([]float32, models.Points(dims))

	tx := newAxisTaps(v.Dims[0], dims[0])
	ty := newAxisTaps(v.Dims[1], dims[1])
	tz := newAxisTaps(v.Dims[2], dims[2])

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > dims[0] {
		workers = dims[0]
	}

	planes := make(chan int, dims[0])
	for x := 0; x < dims[0]; x++ {
		planes <- x
	}
	close(planes)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for x := range planes {
				resamplePlane(v, out, x, &tx, &ty, &tz)
			}
		}()
	}
	wg.Wait()
	return out, nil
}

// resamplePlane fills the x plane of out. Each sample is an x cubic over
// four y cubics, each of which is over four z cubics.
func resamplePlane(src, out *models.Volume, x int, tx, ty, tz *axisTaps) {
	xi, xt := tx.idx[x], tx.t[x]
	var u [4]float64
	var w [4]float64
	for y := 0; y < out.Dims[1]; y++ {
		yi, yt := ty.idx[y], ty.t[y]
		for z := 0; z < out.Dims[2]; z++ {
			zi, zt := tz.idx[z], tz.t[z]
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					w[j] = CubicKernel(zt,
						float64(src.At(xi[i], yi[j], zi[0])),
						float64(src.At(xi[i], yi[j], zi[1])),
						float64(src.At(xi[i], yi[j], zi[2])),
						float64(src.At(xi[i], yi[j], zi[3])))
				}
				u[i] = CubicKernel(yt, w[0], w[1], w[2], w[3])
			}
			out.Set(x, y, z, float32(CubicKernel(xt, u[0], u[1], u[2], u[3])))
		}
	}
}

// ParseDims parses a size of the form "NXxNYxNZ", for example "10x10x10".
func ParseDims(s string) ([3]int, error) {
	var dims [3]int
	parts := strings.Split(strings.TrimSpace(s), "x")
	if len(parts) != 3 {
		return dims, errors.Wrapf(ErrInvalidDimensions, "%q is not of the form NXxNYxNZ", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return dims, errors.Wrapf(ErrInvalidDimensions, "%q: bad size %q", s, p)
		}
		dims[i] = n
	}
	return dims, nil
}

// FormatDims is the inverse of ParseDims.
func FormatDims(dims [3]int) string {
	return strconv.Itoa(dims[0]) + "x" + strconv.Itoa(dims[1]) + "x" + strconv.Itoa(dims[2])
}

package stats

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latticevol/internal/models"
	"latticevol/pkg/vtk"
)

func volumeOf(vals ...float32) *models.Volume {
	v := models.NewVolume([3]int{len(vals), 1, 1})
	copy(v.Data, vals)
	v.Title = "values"
	return v
}

func TestThresholdPolicy(t *testing.T) {
	cases := []struct {
		name      string
		vals      []float32
		low, high float64
	}{
		{"positive", []float32{1, 2, 3, 4, 5, 6}, 0, 4},
		{"negative", []float32{-1, -2, -3}, -2, 0},
		{"mixed", []float32{-4, 4}, -4, 4},
		{"zero minimum", []float32{0, 1, 2}, 0, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := Analyze(volumeOf(c.vals...))
			require.NoError(t, err)
			assert.Equal(t, c.low, r.IsoLow)
			assert.Equal(t, c.high, r.IsoHigh)
		})
	}
}

func TestSampleSetRecordsExtremes(t *testing.T) {
	r, err := Analyze(volumeOf(3, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2, 3, 3, 3}, r.Samples)
	assert.Equal(t, 1.0, r.Minimum)
	assert.Equal(t, 3.0, r.Maximum)
	assert.Equal(t, "values", r.Name)
}

func TestStride(t *testing.T) {
	a := NewAnalyzer(1000, TargetSamples)
	assert.Equal(t, 10, a.stride)
	assert.Equal(t, 1, NewAnalyzer(50, TargetSamples).stride)
	assert.Equal(t, 1, NewAnalyzer(10, 0).stride)

	vals := make([]float32, 1000)
	a.Add(vals)
	r, err := a.Result()
	require.NoError(t, err)
	// index 0 counts as new minimum, new maximum and stride sample
	assert.Len(t, r.Samples, 100+2)
}

func TestRangeBoundsEverySample(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		v := models.NewVolume([3]int{7, 5, 3})
		shift := rng.Float64()*4 - 2
		for i := range v.Data {
			v.Data[i] = float32(rng.NormFloat64() + shift)
		}
		r, err := Analyze(v)
		require.NoError(t, err)
		for _, f := range v.Data {
			assert.LessOrEqual(t, r.Minimum, float64(f))
			assert.GreaterOrEqual(t, r.Maximum, float64(f))
		}
		switch {
		case r.Minimum*r.Maximum >= 0 && r.Maximum > 0:
			assert.Equal(t, 0.0, r.IsoLow)
		case r.Minimum*r.Maximum >= 0 && r.Minimum < 0:
			assert.Equal(t, 0.0, r.IsoHigh)
		default:
			assert.Equal(t, -r.IsoLow, r.IsoHigh)
		}
	}
}

func TestStreamingMatchesInMemory(t *testing.T) {
	v := models.NewVolume([3]int{31, 17, 9})
	for i := range v.Data {
		v.Data[i] = float32(math.Cos(float64(i) / 13))
	}
	whole, err := Analyze(v)
	require.NoError(t, err)

	a := NewAnalyzer(len(v.Data), TargetSamples)
	for off := 0; off < len(v.Data); off += 100 {
		end := off + 100
		if end > len(v.Data) {
			end = len(v.Data)
		}
		a.Add(v.Data[off:end])
	}
	chunked, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, whole.Samples, chunked.Samples)
	assert.Equal(t, whole.IsoLow, chunked.IsoLow)
	assert.Equal(t, whole.IsoHigh, chunked.IsoHigh)

	path := filepath.Join(t.TempDir(), "cos.vtk")
	v.Title = "cos"
	require.NoError(t, vtk.WriteFile(path, v))
	fromFile, err := AnalyzeFile(path)
	require.NoError(t, err)
	assert.Equal(t, whole.Samples, fromFile.Samples)
	assert.Equal(t, "cos", fromFile.Name)
}

func TestEmpty(t *testing.T) {
	_, err := NewAnalyzer(0, TargetSamples).Result()
	assert.Equal(t, ErrEmpty, err)
}

func TestSummary(t *testing.T) {
	r := Result{Samples: []float64{1, 2, 3, 4}}
	mean, std := r.Summary()
	assert.InDelta(t, 2.5, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), std, 1e-12)

	mean, std = Result{Samples: []float64{2}}.Summary()
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestAnalyzeFileMissing(t *testing.T) {
	_, err := AnalyzeFile(filepath.Join(t.TempDir(), "nope.vtk"))
	assert.Error(t, err)
}

func TestAnalyzeFileTarget(t *testing.T) {
	v := models.NewVolume([3]int{10, 10, 10})
	path := filepath.Join(t.TempDir(), "zeros.vtk")
	require.NoError(t, vtk.WriteFile(path, v))

	coarse, err := AnalyzeFileTarget(path, 10)
	require.NoError(t, err)
	fine, err := AnalyzeFile(path)
	require.NoError(t, err)
	// stride 100 keeps indices 0..900 plus the first value twice
	assert.Len(t, coarse.Samples, 12)
	assert.Len(t, fine.Samples, 102)
}

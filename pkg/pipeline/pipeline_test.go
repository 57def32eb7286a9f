package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latticevol/internal/hash"
	"latticevol/internal/models"
	"latticevol/pkg/config"
	"latticevol/pkg/interpolation"
	"latticevol/pkg/isosurface"
	"latticevol/pkg/stats"
	"latticevol/pkg/stl"
	"latticevol/pkg/vtk"
)

func constant(dims [3]int, f float32) *models.Volume {
	v := models.NewVolume(dims)
	for i := range v.Data {
		v.Data[i] = f
	}
	return v
}

func quietRunner(p *Params) (*Runner, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	p.Log = log
	return NewRunner(p), hook
}

func TestPointChargeRoundTrip(t *testing.T) {
	v := MakeVolume(10)
	path := filepath.Join(t.TempDir(), "charge.vtk")
	require.NoError(t, vtk.WriteFile(path, v))

	back, err := vtk.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash.Volume(v), hash.Volume(back))

	res, err := stats.Analyze(back)
	require.NoError(t, err)
	level := 0.5 * (res.Minimum + res.Maximum)
	first := isosurface.Extract(back, level)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, isosurface.Extract(back, level))
}

func TestMakeVolume(t *testing.T) {
	v := MakeVolume(4)
	assert.Equal(t, [3]int{4, 4, 4}, v.Dims)
	assert.Equal(t, vtk.DefaultField, v.Field)
	// the charge sits on grid point (2, 2, 2)
	assert.InDelta(t, 1/0.0316227766, v.At(2, 2, 2), 1e-3)
	assert.InDelta(t, 1/1.0005, v.At(3, 2, 2), 1e-3)

	assert.Error(t, MakeFile(filepath.Join(t.TempDir(), "x.vtk"), 0, 1))
}

func TestSplit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "charge.multi.vtk")
	require.NoError(t, MakeFile(path, 4, 3))

	files, err := Split(path, "slice[02]", "")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "charge.00000000.vtk"),
		filepath.Join(dir, "charge.00010000.vtk"),
	}, files)
	_, err = os.Stat(filepath.Join(dir, "charge.00020000.vtk"))
	assert.True(t, os.IsNotExist(err), "files are numbered over matching fields")

	want := MakeVolume(4)
	for _, f := range files {
		fields, err := vtk.ReadFields(f)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "slice", fields[0].Field)
		assert.Equal(t, "charge.multi.vtk", fields[0].Title)
		assert.Equal(t, want.Data, fields[0].Data)
	}

	// the pattern is anchored at the start of the field name
	files, err = Split(path, "ice", "")
	require.NoError(t, err)
	assert.Empty(t, files)

	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0755))
	files, err = Split(path, "slice[12]", out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "charge.00000000.vtk"),
		filepath.Join(out, "charge.00010000.vtk"),
	}, files)

	_, err = Split(path, "(", "")
	assert.Error(t, err)
}

func TestInterpolatePair(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "run.00000000.vtk")
	f2 := filepath.Join(dir, "run.00010000.vtk")
	a := constant([3]int{3, 2, 2}, 0)
	a.Title = "first"
	a.Spacing = [3]float64{2, 2, 2}
	require.NoError(t, vtk.WriteFile(f1, a))
	require.NoError(t, vtk.WriteFile(f2, constant([3]int{3, 2, 2}, 3)))

	names, err := InterpolatePair(f1, f2, 2, "")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "run.00000001.vtk"),
		filepath.Join(dir, "run.00000002.vtk"),
	}, names)

	for i, name := range names {
		v, err := vtk.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, "first", v.Title)
		assert.Equal(t, a.Spacing, v.Spacing)
		for _, f := range v.Data {
			assert.InDelta(t, float64(i+1), f, 1e-6)
		}
	}

	_, err = InterpolatePair(f1, filepath.Join(dir, "other.vtk"), 2, "")
	assert.True(t, errors.Is(err, ErrFrameName))

	f3 := filepath.Join(dir, "run.00020000.vtk")
	require.NoError(t, vtk.WriteFile(f3, constant([3]int{2, 2, 2}, 1)))
	_, err = InterpolatePair(f2, f3, 1, "")
	assert.True(t, errors.Is(err, interpolation.ErrDimensionMismatch))

	names, err = InterpolatePair(f1, f2, 0, "")
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestInterpolatePairTruncated(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "run.00000000.vtk")
	f2 := filepath.Join(dir, "run.00010000.vtk")
	require.NoError(t, vtk.WriteFile(f1, constant([3]int{4, 4, 4}, 0)))
	require.NoError(t, vtk.WriteFile(f2, constant([3]int{4, 4, 4}, 1)))
	fi, err := os.Stat(f2)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(f2, fi.Size()-8))

	names, err := InterpolatePair(f1, f2, 3, "")
	assert.True(t, errors.Is(err, vtk.ErrTruncatedData), "%v", err)
	assert.Empty(t, names)
	for i := 1; i <= 3; i++ {
		_, err := os.Stat(FrameName(f1, i))
		assert.True(t, os.IsNotExist(err), "frame %d left behind", i)
	}
}

func TestExtractVolumeRejectsShortData(t *testing.T) {
	v := MakeVolume(5)
	v.Data = v.Data[:10]
	surfaces, err := ExtractVolume(v, filepath.Join(t.TempDir(), "short.vtk"),
		stats.Result{IsoLow: 0, IsoHigh: 1}, SurfaceOptions{WriteLow: true, WriteHigh: true})
	assert.Error(t, err)
	assert.Empty(t, surfaces)
}

func TestInterpolateBatch(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		filepath.Join(dir, "run.00020000.vtk"),
		filepath.Join(dir, "run.00000000.vtk"),
		filepath.Join(dir, "run.00010000.vtk"),
	}
	require.NoError(t, vtk.WriteFile(files[0], constant([3]int{2, 2, 2}, 2)))
	require.NoError(t, vtk.WriteFile(files[1], constant([3]int{2, 2, 2}, 0)))
	// a broken middle frame drops both of its pairs
	require.NoError(t, os.WriteFile(files[2], []byte("not a grid"), 0644))

	r, hook := quietRunner(&Params{})
	out, err := r.Interpolate(files, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "run.00000000.vtk"),
		filepath.Join(dir, "run.00010000.vtk"),
		filepath.Join(dir, "run.00020000.vtk"),
	}, out)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestResampleFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.vtk")
	require.NoError(t, vtk.WriteFile(good, MakeVolume(4)))
	missing := filepath.Join(dir, "missing.vtk")

	r, hook := quietRunner(&Params{NumCores: 2})
	out, err := r.ResampleFiles([]string{missing, good}, [3]int{6, 6, 6})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "good.6x6x6.vtk")}, out)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)

	v, err := vtk.ReadFile(out[0])
	require.NoError(t, err)
	assert.Equal(t, [3]int{6, 6, 6}, v.Dims)

	_, err = r.ResampleFiles([]string{missing}, [3]int{6, 6, 6})
	assert.Error(t, err)
}

func TestExtractSurfaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "charge.vtk")
	require.NoError(t, vtk.WriteFile(path, MakeVolume(10)))

	r, _ := quietRunner(&Params{
		Surface: SurfaceOptions{WriteLow: true, WriteHigh: true},
	})
	surfaces, err := r.ExtractSurfaces([]string{path})
	require.NoError(t, err)
	require.Len(t, surfaces, 2)

	// a positive field puts the low level at zero, below every sample
	low, high := surfaces[0], surfaces[1]
	assert.Equal(t, "low", low.Kind)
	assert.Equal(t, 0.0, low.Level)
	assert.Zero(t, low.Triangles)
	assert.Empty(t, low.Path)
	_, err = os.Stat(SurfaceName(path, "low"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, "high", high.Kind)
	assert.Equal(t, r.Stats().IsoHigh, high.Level)
	assert.NotZero(t, high.Triangles)
	require.Equal(t, filepath.Join(dir, "charge.high.stl"), high.Path)

	f, err := os.Open(high.Path)
	require.NoError(t, err)
	defer f.Close()
	_, tris, err := stl.ReadSTL(f)
	require.NoError(t, err)
	assert.Len(t, tris, high.Triangles)

	_, err = r.ExtractSurfaces(nil)
	assert.Error(t, err)
}

func TestExtractSurfacesGrouped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "charge.vtk")
	require.NoError(t, vtk.WriteFile(path, MakeVolume(8)))

	res, err := stats.AnalyzeFile(path)
	require.NoError(t, err)
	out := filepath.Join(dir, "stl")
	require.NoError(t, os.Mkdir(out, 0755))
	surfaces, err := ExtractFile(path, res, SurfaceOptions{
		WriteHigh:   true,
		Grouped:     true,
		UseGeometry: true,
		Workers:     3,
		OutputDir:   out,
	})
	require.NoError(t, err)
	require.Len(t, surfaces, 1)
	assert.Equal(t, filepath.Join(out, "charge.high.stl"), surfaces[0].Path)
	info, err := os.Stat(surfaces[0].Path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.vtk", "a.vtk", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	files, err := Expand([]string{filepath.Join(dir, "*.vtk"), filepath.Join(dir, "a.vtk")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.vtk"), filepath.Join(dir, "b.vtk")}, files)

	_, err = Expand([]string{filepath.Join(dir, "*.none")})
	assert.Error(t, err)
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	cfg := config.DefaultConfig()
	cfg.Processing.NumCores = 2
	cfg.Interpolation.Frames = 1
	cfg.Interpolation.Resample = "5x5x5"
	cfg.Output.Dir = out

	p := ParamsFromConfig(cfg)
	p.Inputs = []string{filepath.Join(dir, "charge.vtk")}
	p.MakeSize = 6
	p.MakeFields = 2
	p.SplitPattern = "slice"

	r, _ := quietRunner(p)
	require.NoError(t, r.Process())
	assert.Equal(t, []string{
		filepath.Join(out, "charge.00000000.5x5x5.vtk"),
		filepath.Join(out, "charge.00000001.5x5x5.vtk"),
		filepath.Join(out, "charge.00010000.5x5x5.vtk"),
	}, r.Files())

	require.NotNil(t, r.Stats())
	assert.Len(t, r.Surfaces(), 6)
	written := 0
	for _, s := range r.Surfaces() {
		if s.Path != "" {
			written++
			assert.Equal(t, out, filepath.Dir(s.Path))
		}
	}
	assert.NotZero(t, written)
}

func TestProcessSplitNeedsOneFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.vtk", "b.vtk"} {
		require.NoError(t, vtk.WriteFile(filepath.Join(dir, name), MakeVolume(3)))
	}
	r, _ := quietRunner(&Params{
		Inputs:       []string{filepath.Join(dir, "*.vtk")},
		SplitPattern: "slice",
	})
	assert.Error(t, r.Process())

	r, _ = quietRunner(&Params{})
	assert.Error(t, r.Process())
}

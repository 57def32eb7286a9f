package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latticevol/pkg/config"
	"latticevol/pkg/vtk"
)

// execute runs the root command with args. Flag variables keep their
// values between runs, so every test passes the flags it relies on.
func execute(args ...string) error {
	RootCmd.SetArgs(append([]string{"--config="}, args...))
	return RootCmd.Execute()
}

func TestMakeAndAnalyze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charge.vtk")
	require.NoError(t, execute("make", path, "--size", "6", "--fields", "2"))

	fields, err := vtk.ReadFields(path)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "slice0", fields[0].Field)
	assert.Equal(t, "slice1", fields[1].Field)
	assert.Equal(t, [3]int{6, 6, 6}, fields[0].Dims)

	require.NoError(t, execute("analyze", path))
	assert.Error(t, execute("analyze", filepath.Join(t.TempDir(), "*.none")))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	path := filepath.Join(dir, "charge.vtk")
	require.NoError(t, execute("run", "--out", out, "--make", "6", "--fields", "2",
		"--split", "slice", "--frames", "1", "--resample", "4x4x4", path))

	for _, name := range []string{
		"charge.00000000.vtk",
		"charge.00000001.vtk",
		"charge.00010000.vtk",
		"charge.00000001.4x4x4.vtk",
	} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, out, cfg.Output.Dir)
}

func TestConfigAndResample(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "latticevol.yaml")
	require.NoError(t, execute("config", cfgPath))
	loaded, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Surface, loaded.Surface)

	path := filepath.Join(dir, "charge.vtk")
	require.NoError(t, execute("make", path, "--size", "5", "--fields", "1"))
	require.NoError(t, execute("--config", cfgPath, "--out", dir, "resample", "--dims", "3x4x5", path))

	v, err := vtk.ReadFile(filepath.Join(dir, "charge.3x4x5.vtk"))
	require.NoError(t, err)
	assert.Equal(t, [3]int{3, 4, 5}, v.Dims)

	assert.Error(t, execute("resample", "--dims", "3x4", path))
}

func TestSurfaceAndSlices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "charge.vtk")
	require.NoError(t, execute("make", path, "--size", "8", "--fields", "1"))
	require.NoError(t, execute("--out", dir, "surface", "--low=false", "--high", path))

	_, err := os.Stat(filepath.Join(dir, "charge.high.stl"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "charge.low.stl"))
	assert.True(t, os.IsNotExist(err))

	slices := filepath.Join(dir, "slices")
	movie := filepath.Join(dir, "charge.avi")
	require.NoError(t, execute("--out", dir, "slices", "--axis", "Y", "--dir", slices, "--movie", movie, path))
	entries, err := os.ReadDir(slices)
	require.NoError(t, err)
	assert.Len(t, entries, 8)
	_, err = os.Stat(movie)
	assert.NoError(t, err)
}

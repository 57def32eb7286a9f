package visualization

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"latticevol/internal/models"
)

// layered returns a volume whose z planes hold z/depth
func layered(width, height, depth int) *models.Volume {
	v := models.NewVolume([3]int{width, height, depth})
	for z := 0; z < depth; z++ {
		value := float32(z) / float32(depth)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(x, y, z, value)
			}
		}
	}
	return v
}

// TestNewViewer verifies that the viewer normalizes to the volume range
func TestNewViewer(t *testing.T) {
	v := layered(4, 4, 5)
	viewer := NewViewer(v)

	if viewer.lo != 0 {
		t.Errorf("Expected lower bound 0, got %f", viewer.lo)
	}
	if want := 1 / float64(float32(4)/float32(5)); math.Abs(viewer.scale-want) > 1e-6 {
		t.Errorf("Expected scale %f, got %f", want, viewer.scale)
	}

	flat := NewViewer(models.NewVolume([3]int{2, 2, 2}))
	if flat.scale != 0 {
		t.Errorf("Expected zero scale for a constant volume, got %f", flat.scale)
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(layered(width, height, depth))

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		// the top plane is the maximum and maps to white
		expected := float64(z) / float64(depth-1) * 65535
		got := float64(img.Gray16At(width/2, height/2).Y)
		if math.Abs(got-expected) > 2 {
			t.Errorf("Expected Z slice value ~%.0f at center, got %.0f", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}
	if imgX.Gray16At(depth-1, 0).Y != 65535 {
		t.Errorf("Expected white at the last z column of an X slice, got %d", imgX.Gray16At(depth-1, 0).Y)
	}

	imgY, err := viewer.ExtractSlice("Y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestSetRange verifies clamping outside an explicit range
func TestSetRange(t *testing.T) {
	viewer := NewViewer(layered(2, 2, 5))
	viewer.SetRange(0.2, 0.4)

	cases := map[int]uint16{0: 0, 1: 0, 2: 65535, 4: 65535}
	for z, want := range cases {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatal(err)
		}
		if got := img.Gray16At(0, 0).Y; got != want {
			t.Errorf("z=%d: expected %d, got %d", z, want, got)
		}
	}
}

// TestExtractRegion verifies that 3D regions are correctly extracted
func TestExtractRegion(t *testing.T) {
	width, height, depth := 10, 10, 5
	v := models.NewVolume([3]int{width, height, depth})
	v.Spacing = [3]float64{0.5, 1, 2}
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(x, y, z, float32(x)/float32(width)+float32(y)/float32(height)+float32(z)/float32(depth))
			}
		}
	}
	viewer := NewViewer(v)

	start := [3]int{2, 3, 1}
	size := [3]int{4, 3, 2}
	region, err := viewer.ExtractRegion(start, size)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	if region.Len() != 4*3*2 || len(region.Data) != region.Len() {
		t.Errorf("Expected region size %d, got %d", 4*3*2, len(region.Data))
	}
	if region.Origin != [3]float64{1, 3, 2} {
		t.Errorf("Expected shifted origin, got %v", region.Origin)
	}

	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				want := v.At(start[0]+x, start[1]+y, start[2]+z)
				if got := region.At(x, y, z); got != want {
					t.Errorf("Region value mismatch at (%d,%d,%d): expected %f, got %f", x, y, z, want, got)
				}
			}
		}
	}

	if _, err := viewer.ExtractRegion([3]int{-1, 0, 0}, [3]int{1, 1, 1}); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}
	if _, err := viewer.ExtractRegion([3]int{0, 0, 0}, [3]int{0, 1, 1}); err == nil {
		t.Error("Expected error for zero size, got nil")
	}
	if _, err := viewer.ExtractRegion([3]int{width - 1, 0, 0}, [3]int{2, 1, 1}); err == nil {
		t.Error("Expected error for region extending beyond volume, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	width, height, depth := 5, 5, 3
	viewer := NewViewer(layered(width, height, depth))

	outputDir := filepath.Join(t.TempDir(), "slices")
	if err := viewer.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSaveSliceMovie verifies that an AVI file with one frame per slice is written
func TestSaveSliceMovie(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	viewer := NewViewer(layered(6, 4, 5))
	filename := filepath.Join(t.TempDir(), "slices.avi")
	if err := viewer.SaveSliceMovie("z", filename, 10); err != nil {
		t.Fatalf("Failed to save slice movie: %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read movie: %v", err)
	}
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		t.Errorf("Expected a RIFF AVI header, got %q", data[:12])
	}

	if err := viewer.SaveSliceMovie("w", filename, 10); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if err := viewer.SaveSliceMovie("z", filename, 0); err == nil {
		t.Error("Expected error for zero frame rate, got nil")
	}
}

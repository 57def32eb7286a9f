// Package visualization renders axis-aligned cross sections of a volume as
// grayscale images.
package visualization

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/icza/mjpeg"

	"latticevol/internal/models"
)

// Viewer maps the samples of a volume onto 16-bit gray levels, with the
// volume minimum drawn black and the maximum white.
type Viewer struct {
	vol *models.Volume

	// lo and scale map a sample s to (s-lo)*scale in [0, 1]
	lo    float64
	scale float64
}

// NewViewer creates a viewer normalized to the range of v.
func NewViewer(v *models.Volume) *Viewer {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range v.Data {
		x := float64(f)
		if math.IsNaN(x) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}
	if math.IsInf(lo, 1) {
		lo = 0
	}
	return &Viewer{vol: v, lo: lo, scale: scale}
}

// SetRange overrides the normalization so lo maps to black and hi to white.
func (v *Viewer) SetRange(lo, hi float64) {
	v.lo = lo
	v.scale = 0
	if hi > lo {
		v.scale = 1 / (hi - lo)
	}
}

func (v *Viewer) gray(x, y, z int) color.Gray16 {
	s := (float64(v.vol.At(x, y, z)) - v.lo) * v.scale
	if math.IsNaN(s) {
		s = 0
	}
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(65535, s*65535))))}
}

func (v *Viewer) axisLength(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.vol.Dims[0], nil
	case "y", "Y":
		return v.vol.Dims[1], nil
	case "z", "Z":
		return v.vol.Dims[2], nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// An x slice is laid out with z across and y down, a y slice with x across
// and z down, and a z slice with x across and y down.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	n, err := v.axisLength(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}
	nx, ny, nz := v.vol.Dims[0], v.vol.Dims[1], v.vol.Dims[2]

	var img *image.Gray16
	switch axis {
	case "x", "X":
		img = image.NewGray16(image.Rect(0, 0, nz, ny))
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				img.SetGray16(z, y, v.gray(position, y, z))
			}
		}
	case "y", "Y":
		img = image.NewGray16(image.Rect(0, 0, nx, nz))
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, z, v.gray(x, position, z))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, nx, ny))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, y, v.gray(x, y, position))
			}
		}
	}
	return img, nil
}

// ExtractRegion copies a box of samples into a new volume with the same
// spacing and a shifted origin.
func (v *Viewer) ExtractRegion(start, size [3]int) (*models.Volume, error) {
	for i := 0; i < 3; i++ {
		if start[i] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[i] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
		if start[i]+size[i] > v.vol.Dims[i] {
			return nil, fmt.Errorf("region extends beyond volume boundaries")
		}
	}

	region := v.vol.Geometry()
	region.Dims = size
	region.Data = make([]float32, models.Points(size))
	for i := 0; i < 3; i++ {
		region.Origin[i] += float64(start[i]) * v.vol.Spacing[i]
	}
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				region.Set(x, y, z, v.vol.At(start[0]+x, start[1]+y, start[2]+z))
			}
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	n, err := v.axisLength(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveSliceMovie writes every slice along axis as one frame of an MJPEG
// AVI file played at fps frames per second.
func (v *Viewer) SaveSliceMovie(axis string, filename string, fps int) error {
	n, err := v.axisLength(axis)
	if err != nil {
		return err
	}
	if fps < 1 {
		return fmt.Errorf("frame rate must be positive, got %d", fps)
	}

	first, err := v.ExtractSlice(axis, 0)
	if err != nil {
		return err
	}
	b := first.Bounds()
	aw, err := mjpeg.New(filename, int32(b.Dx()), int32(b.Dy()), int32(fps))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for pos := 0; pos < n; pos++ {
		img := first
		if pos > 0 {
			if img, err = v.ExtractSlice(axis, pos); err != nil {
				aw.Close()
				return err
			}
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			aw.Close()
			return err
		}
		if err := aw.AddFrame(buf.Bytes()); err != nil {
			aw.Close()
			return err
		}
	}
	return aw.Close()
}

package models

import "fmt"

// Volume represents a scalar field sampled on a uniform rectilinear grid
type Volume struct {
	// Title is the free-text label stored on the second header line
	Title string

	// Field is the name of the scalar field (the token after SCALARS)
	Field string

	// Dims holds the number of samples along x, y and z
	Dims [3]int

	// Origin is the position of the first sample
	Origin [3]float64

	// Spacing is the distance between neighbouring samples along each axis
	Spacing [3]float64

	// Data is the field in row-major order with x varying fastest,
	// then y, then z
	Data []float32
}

// DefaultOrigin and DefaultSpacing are used when a header omits geometry.
var (
	DefaultOrigin  = [3]float64{0, 0, 0}
	DefaultSpacing = [3]float64{1, 1, 1}
)

// NewVolume allocates a zero-filled volume with default geometry.
func NewVolume(dims [3]int) *Volume {
	return &Volume{
		Dims:    dims,
		Origin:  DefaultOrigin,
		Spacing: DefaultSpacing,
		Data:    make([]float32, Points(dims)),
	}
}

// Points returns nx*ny*nz, or 0 if any dimension is non-positive.
func Points(dims [3]int) int {
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return 0
	}
	return dims[0] * dims[1] * dims[2]
}

// Len returns the number of samples declared by the dimensions.
func (v *Volume) Len() int { return Points(v.Dims) }

// Index converts grid coordinates into an offset in Data.
func (v *Volume) Index(x, y, z int) int {
	return x + v.Dims[0]*(y+v.Dims[1]*z)
}

// At returns the sample at (x, y, z).
func (v *Volume) At(x, y, z int) float32 { return v.Data[v.Index(x, y, z)] }

// Set stores a sample at (x, y, z).
func (v *Volume) Set(x, y, z int, val float32) { v.Data[v.Index(x, y, z)] = val }

// SameShape reports whether two volumes have identical dimensions.
func (v *Volume) SameShape(o *Volume) bool { return v.Dims == o.Dims }

// Validate checks that Data agrees with Dims.
func (v *Volume) Validate() error {
	n := v.Len()
	if n == 0 {
		return fmt.Errorf("invalid dimensions %dx%dx%d", v.Dims[0], v.Dims[1], v.Dims[2])
	}
	if len(v.Data) != n {
		return fmt.Errorf("volume holds %d samples but dimensions %dx%dx%d need %d",
			len(v.Data), v.Dims[0], v.Dims[1], v.Dims[2], n)
	}
	return nil
}

// Geometry returns a copy of the volume without its samples. The returned
// volume has a nil Data slice.
func (v *Volume) Geometry() *Volume {
	return &Volume{
		Title:   v.Title,
		Field:   v.Field,
		Dims:    v.Dims,
		Origin:  v.Origin,
		Spacing: v.Spacing,
	}
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	c := v.Geometry()
	c.Data = make([]float32, len(v.Data))
	copy(c.Data, v.Data)
	return c
}

// Nested returns the samples as a [x][y][z] array.
func (v *Volume) Nested() [][][]float32 {
	nx, ny, nz := v.Dims[0], v.Dims[1], v.Dims[2]
	out := make([][][]float32, nx)
	for x := 0; x < nx; x++ {
		out[x] = make([][]float32, ny)
		for y := 0; y < ny; y++ {
			row := make([]float32, nz)
			for z := 0; z < nz; z++ {
				row[z] = v.At(x, y, z)
			}
			out[x][y] = row
		}
	}
	return out
}

// FromNested builds a volume from a [x][y][z] array. All rows must have
// the same length.
func FromNested(data [][][]float32) (*Volume, error) {
	if len(data) == 0 || len(data[0]) == 0 || len(data[0][0]) == 0 {
		return nil, fmt.Errorf("nested array is empty")
	}
	dims := [3]int{len(data), len(data[0]), len(data[0][0])}
	v := NewVolume(dims)
	for x := range data {
		if len(data[x]) != dims[1] {
			return nil, fmt.Errorf("plane x=%d has %d rows, expected %d", x, len(data[x]), dims[1])
		}
		for y := range data[x] {
			if len(data[x][y]) != dims[2] {
				return nil, fmt.Errorf("row (%d,%d) has %d samples, expected %d", x, y, len(data[x][y]), dims[2])
			}
			for z, val := range data[x][y] {
				v.Set(x, y, z, val)
			}
		}
	}
	return v, nil
}

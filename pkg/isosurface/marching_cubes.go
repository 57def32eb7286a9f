// Package isosurface triangulates level sets of scalar volumes with the
// marching cubes lookup tables.
package isosurface

import (
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"latticevol/internal/models"
)

// cornerOffsets lists the grid offsets of the eight cell corners in the
// order the lookup tables expect.
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// edgeCorners gives the two corners joined by each of the twelve edges.
var edgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

const (
	endpointEpsilon = 1e-12
	flatEpsilon     = 1e-10
)

// Extractor produces the triangle soup of one level set of a volume.
type Extractor struct {
	vol     *models.Volume
	level   float64
	origin  r3.Vec
	scale   r3.Vec
	workers int
}

// New creates an extractor for v at the given level. Vertices are emitted
// in grid index coordinates until SetScale, SetOrigin or UseGeometry is
// called.
func New(v *models.Volume, level float64) *Extractor {
	return &Extractor{
		vol:     v,
		level:   level,
		scale:   r3.Vec{X: 1, Y: 1, Z: 1},
		workers: runtime.NumCPU(),
	}
}

// Extract returns the triangles of the level set of v in grid index
// coordinates. It returns nil when no cell is crossed and panics on a
// malformed volume.
func Extract(v *models.Volume, level float64) []r3.Triangle {
	return New(v, level).Triangles()
}

// SetScale sets the size of one cell along each axis.
func (e *Extractor) SetScale(x, y, z float64) {
	e.scale = r3.Vec{X: x, Y: y, Z: z}
}

// SetOrigin sets the position of grid point (0, 0, 0).
func (e *Extractor) SetOrigin(o r3.Vec) {
	e.origin = o
}

// UseGeometry places vertices in world coordinates using the volume's
// origin and spacing.
func (e *Extractor) UseGeometry() {
	o, s := e.vol.Origin, e.vol.Spacing
	e.origin = r3.Vec{X: o[0], Y: o[1], Z: o[2]}
	e.scale = r3.Vec{X: s[0], Y: s[1], Z: s[2]}
}

// SetWorkers sets the number of goroutines used. Values below one mean one.
func (e *Extractor) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	e.workers = n
}

// Triangles runs the extraction. Cells are visited with x outermost and z
// innermost, and triangles are emitted in table order, so the result does
// not depend on the number of workers. It panics if the volume's samples
// do not match its dimensions.
func (e *Extractor) Triangles() []r3.Triangle {
	if err := e.vol.Validate(); err != nil {
		panic("isosurface: " + err.Error())
	}
	nx, ny, nz := e.vol.Dims[0], e.vol.Dims[1], e.vol.Dims[2]
	if nx < 2 || ny < 2 || nz < 2 {
		return nil
	}
	cells := nx - 1

	workers := e.workers
	if workers > cells {
		workers = cells
	}
	if workers <= 1 {
		return e.slab(0, cells, nil)
	}

	parts := make([][]r3.Triangle, workers)
	perWorker := (cells + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > cells {
			end = cells
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			parts[w] = e.slab(start, end, nil)
		}(w, start, end)
	}
	wg.Wait()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if total == 0 {
		return nil
	}
	out := make([]r3.Triangle, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// slab triangulates the cells whose x index lies in [x0, x1).
func (e *Extractor) slab(x0, x1 int, out []r3.Triangle) []r3.Triangle {
	v := e.vol
	var values [8]float64
	var corners [8]r3.Vec
	for x := x0; x < x1; x++ {
		for y := 0; y < v.Dims[1]-1; y++ {
			for z := 0; z < v.Dims[2]-1; z++ {
				for i, off := range cornerOffsets {
					cx, cy, cz := x+off[0], y+off[1], z+off[2]
					values[i] = float64(v.At(cx, cy, cz))
					corners[i] = e.position(cx, cy, cz)
				}
				out = polygonise(&values, &corners, e.level, out)
			}
		}
	}
	return out
}

func (e *Extractor) position(x, y, z int) r3.Vec {
	return r3.Vec{
		X: e.origin.X + e.scale.X*float64(x),
		Y: e.origin.Y + e.scale.Y*float64(y),
		Z: e.origin.Z + e.scale.Z*float64(z),
	}
}

// CubeIndex returns the table index of a cell: bit i is set when corner i
// lies below level.
func CubeIndex(values [8]float64, level float64) int {
	idx := 0
	for i, v := range values {
		if v < level {
			idx |= 1 << uint(i)
		}
	}
	return idx
}

// TriangleCount returns how many triangles the table emits for a cube
// index.
func TriangleCount(cubeIndex int) int {
	row := &triTable[cubeIndex&0xff]
	n := 0
	for i := 0; i+2 < len(row) && row[i] != -1; i += 3 {
		n++
	}
	return n
}

// polygonise appends the triangles of one cell to out.
func polygonise(values *[8]float64, corners *[8]r3.Vec, level float64, out []r3.Triangle) []r3.Triangle {
	idx := CubeIndex(*values, level)
	mask := edgeTable[idx]
	if mask == 0 {
		return out
	}

	var verts [12]r3.Vec
	for edge, pair := range edgeCorners {
		if mask&(1<<uint(edge)) == 0 {
			continue
		}
		a, b := pair[0], pair[1]
		verts[edge] = vertexInterp(level, corners[a], corners[b], values[a], values[b])
	}

	row := &triTable[idx]
	for i := 0; i+2 < len(row) && row[i] != -1; i += 3 {
		out = append(out, r3.Triangle{verts[row[i]], verts[row[i+1]], verts[row[i+2]]})
	}
	return out
}

// vertexInterp finds where the level crosses the edge p1-p2.
func vertexInterp(level float64, p1, p2 r3.Vec, v1, v2 float64) r3.Vec {
	if math.Abs(level-v1) < endpointEpsilon {
		return p1
	}
	if math.Abs(level-v2) < endpointEpsilon {
		return p2
	}
	if math.Abs(v1-v2) < flatEpsilon {
		return p1
	}
	mu := (level - v1) / (v2 - v1)
	return r3.Add(p1, r3.Scale(mu, r3.Sub(p2, p1)))
}

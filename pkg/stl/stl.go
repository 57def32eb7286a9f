// Package stl writes isosurfaces as binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/unixpickle/model3d/model3d"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	headerSize = 80
	facetSize  = 50
)

// Header is written at the start of every file.
const Header = "latticevol isosurface"

// Triangle is one STL facet.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// FacetNormal returns the unit normal of t following its winding, or the
// zero vector for a degenerate triangle.
func FacetNormal(t r3.Triangle) r3.Vec {
	n := r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// FromSurface converts a triangle soup into facets with unit normals.
func FromSurface(tris []r3.Triangle) []Triangle {
	out := make([]Triangle, len(tris))
	for i, t := range tris {
		out[i] = Triangle{
			Normal:  toFloat32(FacetNormal(t)),
			Vertex1: toFloat32(t[0]),
			Vertex2: toFloat32(t[1]),
			Vertex3: toFloat32(t[2]),
		}
	}
	return out
}

func putVec(b []byte, v [3]float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
}

func getVec(b []byte) [3]float32 {
	var v [3]float32
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// WriteSTL writes tris to w in binary STL format.
func WriteSTL(w io.Writer, tris []Triangle) error {
	var head [headerSize + 4]byte
	copy(head[:headerSize], Header)
	binary.LittleEndian.PutUint32(head[headerSize:], uint32(len(tris)))
	if _, err := w.Write(head[:]); err != nil {
		return errors.Wrap(err, "write stl header")
	}

	var facet [facetSize]byte
	for i, t := range tris {
		putVec(facet[0:], t.Normal)
		putVec(facet[12:], t.Vertex1)
		putVec(facet[24:], t.Vertex2)
		putVec(facet[36:], t.Vertex3)
		if _, err := w.Write(facet[:]); err != nil {
			return errors.Wrapf(err, "write facet %d", i)
		}
	}
	return nil
}

// SaveToSTL writes tris to the file at path.
func SaveToSTL(path string, tris []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := WriteSTL(bw, tris); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	return f.Close()
}

// SaveSurface writes a triangle soup to path.
func SaveSurface(path string, tris []r3.Triangle) error {
	return SaveToSTL(path, FromSurface(tris))
}

// ReadSTL reads a binary STL stream. The header text is returned with
// trailing padding removed.
func ReadSTL(r io.Reader) (string, []Triangle, error) {
	var head [headerSize + 4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", nil, errors.Wrap(err, "read stl header")
	}
	title := strings.TrimRight(string(head[:headerSize]), " \x00")
	n := binary.LittleEndian.Uint32(head[headerSize:])

	tris := make([]Triangle, 0, n)
	var facet [facetSize]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, facet[:]); err != nil {
			return title, nil, errors.Wrapf(err, "read facet %d of %d", i, n)
		}
		tris = append(tris, Triangle{
			Normal:  getVec(facet[0:]),
			Vertex1: getVec(facet[12:]),
			Vertex2: getVec(facet[24:]),
			Vertex3: getVec(facet[36:]),
		})
	}
	return title, tris, nil
}

// ToMesh builds a model3d mesh from a triangle soup.
func ToMesh(tris []r3.Triangle) *model3d.Mesh {
	mt := make([]*model3d.Triangle, len(tris))
	for i, t := range tris {
		mt[i] = &model3d.Triangle{
			model3d.Coord3D{X: t[0].X, Y: t[0].Y, Z: t[0].Z},
			model3d.Coord3D{X: t[1].X, Y: t[1].Y, Z: t[1].Z},
			model3d.Coord3D{X: t[2].X, Y: t[2].Y, Z: t[2].Z},
		}
	}
	return model3d.NewMeshTriangles(mt)
}

// SaveGroupedSTL writes the soup through model3d, which groups facets
// that share vertices.
func SaveGroupedSTL(path string, tris []r3.Triangle) error {
	return errors.Wrap(ToMesh(tris).SaveGroupedSTL(path), path)
}

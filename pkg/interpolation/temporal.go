package interpolation

import (
	"io"

	"github.com/pkg/errors"

	"latticevol/internal/models"
	"latticevol/pkg/vtk"
)

// ErrDimensionMismatch is returned when blending volumes of different
// shapes.
var ErrDimensionMismatch = errors.New("interpolation: dimension mismatch")

// blend returns frame i of frames between a and b.
func blend(a, b float32, i, frames int) float32 {
	h := 1 / float64(frames+1)
	return float32(h*float64(frames+1-i)*float64(a) + h*float64(i)*float64(b))
}

// Between returns frames volumes evenly spaced strictly between a and b.
// Frame i (1-based) holds h*(frames+1-i)*a + h*i*b with h = 1/(frames+1).
// Geometry and names are taken from a.
func Between(a, b *models.Volume, frames int) ([]*models.Volume, error) {
	if !a.SameShape(b) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%v and %v", a.Dims, b.Dims)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if frames < 0 {
		return nil, errors.Errorf("interpolation: negative frame count %d", frames)
	}

	out := make([]*models.Volume, frames)
	for i := 1; i <= frames; i++ {
		v := a.Geometry()
		v.Data = make([]float32, len(a.Data))
		for j := range v.Data {
			v.Data[j] = blend(a.Data[j], b.Data[j], i, frames)
		}
		out[i-1] = v
	}
	return out, nil
}

// BetweenStreams blends two raw big-endian payloads of points samples and
// writes frame i to outs[i-1], one chunk at a time. Both readers must be
// positioned at the first payload byte.
func BetweenStreams(a, b io.Reader, points int, outs []io.Writer) error {
	if points <= 0 {
		return errors.Errorf("interpolation: invalid point count %d", points)
	}
	frames := len(outs)
	if frames == 0 {
		return nil
	}

	size := vtk.ChunkSamples
	if points < size {
		size = points
	}
	rawA := make([]byte, 4*size)
	rawB := make([]byte, 4*size)
	rawOut := make([]byte, 4*size)
	valsA := make([]float32, size)
	valsB := make([]float32, size)
	valsOut := make([]float32, size)

	for off := 0; off < points; {
		m := size
		if points-off < m {
			m = points - off
		}
		if err := readChunk(a, rawA[:4*m], off, points); err != nil {
			return err
		}
		if err := readChunk(b, rawB[:4*m], off, points); err != nil {
			return err
		}
		vtk.DecodeFloats(valsA[:m], rawA)
		vtk.DecodeFloats(valsB[:m], rawB)
		for i := 1; i <= frames; i++ {
			for j := 0; j < m; j++ {
				valsOut[j] = blend(valsA[j], valsB[j], i, frames)
			}
			vtk.EncodeFloats(rawOut, valsOut[:m])
			if _, err := outs[i-1].Write(rawOut[:4*m]); err != nil {
				return errors.Wrapf(err, "write frame %d", i)
			}
		}
		off += m
	}
	return nil
}

func readChunk(r io.Reader, buf []byte, off, points int) error {
	got, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(vtk.ErrTruncatedData, "got %d of %d samples", off+got/4, points)
	}
	return err
}

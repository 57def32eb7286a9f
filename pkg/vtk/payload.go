package vtk

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"latticevol/internal/models"
)

// ChunkSamples is the number of float32 values decoded per read.
const ChunkSamples = 1 << 14

// DecodeFloats decodes big-endian float32 values from src into dst.
// len(src) must be at least 4*len(dst).
func DecodeFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.BigEndian.Uint32(src[4*i:]))
	}
}

// EncodeFloats encodes src as big-endian float32 values into dst.
// len(dst) must be at least 4*len(src).
func EncodeFloats(dst []byte, src []float32) {
	for i, f := range src {
		binary.BigEndian.PutUint32(dst[4*i:], math.Float32bits(f))
	}
}

// ScanPayload streams the payload described by h through fn in chunks of
// at most ChunkSamples values. offset is the index of chunk[0] in the
// flattened field. fn must not keep chunk after returning.
func ScanPayload(r io.Reader, h *Header, fn func(offset int, chunk []float32) error) error {
	n := h.Points()
	if n == 0 {
		return errors.Wrapf(ErrFormat, "no samples for dimensions %v", h.Dimensions)
	}
	size := ChunkSamples
	if n < size {
		size = n
	}
	raw := make([]byte, 4*size)
	vals := make([]float32, size)
	for off := 0; off < n; {
		m := size
		if n-off < m {
			m = n - off
		}
		got, err := io.ReadFull(r, raw[:4*m])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrapf(ErrTruncatedData, "field %q: got %d of %d samples", h.Scalars, off+got/4, n)
		} else if err != nil {
			return errors.Wrap(err, "read payload")
		}
		DecodeFloats(vals[:m], raw[:4*m])
		if err := fn(off, vals[:m]); err != nil {
			return err
		}
		off += m
	}
	return nil
}

// ReadPayload reads the payload described by h into a flat volume.
func ReadPayload(r io.Reader, h *Header) (*models.Volume, error) {
	v := h.Volume()
	v.Data = make([]float32, h.Points())
	err := ScanPayload(r, h, func(off int, chunk []float32) error {
		copy(v.Data[off:], chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ReadNested reads the payload described by h as a [x][y][z] array.
func ReadNested(r io.Reader, h *Header) ([][][]float32, error) {
	v, err := ReadPayload(r, h)
	if err != nil {
		return nil, err
	}
	return v.Nested(), nil
}

// WritePayload writes the samples of v as big-endian float32.
func WritePayload(w io.Writer, v *models.Volume) error {
	if err := v.Validate(); err != nil {
		return errors.Wrap(err, "write payload")
	}
	size := ChunkSamples
	if len(v.Data) < size {
		size = len(v.Data)
	}
	raw := make([]byte, 4*size)
	for off := 0; off < len(v.Data); off += size {
		end := off + size
		if end > len(v.Data) {
			end = len(v.Data)
		}
		EncodeFloats(raw, v.Data[off:end])
		if _, err := w.Write(raw[:4*(end-off)]); err != nil {
			return errors.Wrap(err, "write payload")
		}
	}
	return nil
}

package vtk

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"latticevol/internal/models"
)

const bufferSize = 1 << 16

// Reader walks the fields of a single- or multi-field file in order.
type Reader struct {
	br      *bufio.Reader
	first   *Header
	current *Header
	pending bool
}

// NewReader wraps r. Nothing is read until Next is called.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, bufferSize)}
}

// Next advances to the next field and returns its header. Any unread
// payload of the previous field is skipped. It returns io.EOF after the
// last field.
func (r *Reader) Next() (*Header, error) {
	if r.pending {
		skip := int64(4 * r.current.Points())
		if _, err := io.CopyN(io.Discard, r.br, skip); err != nil {
			return nil, errors.Wrapf(ErrTruncatedData, "skipping field %q: %v", r.current.Scalars, err)
		}
		r.pending = false
	}

	var h *Header
	var err error
	if r.first == nil {
		h, err = ReadHeader(r.br)
		if err == nil {
			r.first = h
		}
	} else {
		h, err = ReadNextFieldHeader(r.br, r.first)
	}
	if err != nil {
		return nil, err
	}
	r.current = h
	r.pending = true
	return h, nil
}

// ReadVolume reads the payload of the current field.
func (r *Reader) ReadVolume() (*models.Volume, error) {
	if !r.pending {
		return nil, errors.New("vtk: no field payload pending")
	}
	r.pending = false
	return ReadPayload(r.br, r.current)
}

// Scan streams the payload of the current field through fn.
func (r *Reader) Scan(fn func(offset int, chunk []float32) error) error {
	if !r.pending {
		return errors.New("vtk: no field payload pending")
	}
	r.pending = false
	return ScanPayload(r.br, r.current, fn)
}

// Payload returns a reader limited to the raw bytes of the current field.
// The caller must consume it fully before calling Next.
func (r *Reader) Payload() (io.Reader, error) {
	if !r.pending {
		return nil, errors.New("vtk: no field payload pending")
	}
	r.pending = false
	return io.LimitReader(r.br, int64(4*r.current.Points())), nil
}

// ReadFile reads the first field of the file at path.
func ReadFile(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := NewReader(f)
	if _, err := r.Next(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	v, err := r.ReadVolume()
	return v, errors.Wrap(err, path)
}

// ReadFields reads every field of the file at path.
func ReadFields(path string) ([]*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var vols []*models.Volume
	r := NewReader(f)
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, path)
		}
		v, err := r.ReadVolume()
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		vols = append(vols, v)
	}
	if len(vols) == 0 {
		return nil, errors.Wrapf(ErrFormat, "%s: no fields", path)
	}
	return vols, nil
}

// Write writes vols to w as one file: a full header for the first volume
// and a partial header for each following one. All volumes must share the
// first volume's dimensions.
func Write(w io.Writer, vols ...*models.Volume) error {
	if len(vols) == 0 {
		return errors.New("vtk: nothing to write")
	}
	for i, v := range vols {
		if !v.SameShape(vols[0]) {
			return errors.Errorf("vtk: field %d (%q) has dimensions %v, expected %v", i, v.Field, v.Dims, vols[0].Dims)
		}
		var err error
		if i == 0 {
			err = WriteHeader(w, HeaderFromVolume(v))
		} else {
			err = WritePartialHeader(w, v.Field)
		}
		if err != nil {
			return err
		}
		if err := WritePayload(w, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes vols to path, replacing any existing file. An empty
// title on the first volume is replaced by the file name.
func WriteFile(path string, vols ...*models.Volume) error {
	if len(vols) > 0 && vols[0].Title == "" {
		first := vols[0].Geometry()
		first.Title = filepath.Base(path)
		first.Data = vols[0].Data
		vols = append([]*models.Volume{first}, vols[1:]...)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(f, bufferSize)
	if err := Write(bw, vols...); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	return f.Close()
}

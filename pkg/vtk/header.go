// Package vtk reads and writes legacy VTK structured-points files holding
// one or more big-endian float32 scalar fields.
package vtk

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"latticevol/internal/models"
)

const (
	// Version is the format tag written on the first header line.
	Version = "# vtk DataFile Version 2.0"

	// ModeBinary is the only payload encoding supported.
	ModeBinary = "BINARY"

	// DatasetStructuredPoints is the only dataset type supported.
	DatasetStructuredPoints = "STRUCTURED_POINTS"

	// ScalarFloat is the only scalar type supported.
	ScalarFloat = "float"

	// DefaultField is the scalar name used when a header does not set one.
	DefaultField = "slice"

	// Terminator is the line that ends every full and partial header.
	Terminator = "LOOKUP_TABLE default"

	// MaxHeaderBytes bounds the scan for the terminator of a full header.
	MaxHeaderBytes = 10000

	// MaxPartialHeaderBytes bounds the scan for the terminator of a
	// repeated field header.
	MaxPartialHeaderBytes = 1000
)

// Header is the text preamble of a structured-points file.
type Header struct {
	Version    string
	Title      string
	Mode       string
	Dataset    string
	Dimensions [3]int
	Origin     [3]float64
	Spacing    [3]float64
	PointData  int
	Scalars    string
	ScalarType string
}

// Points returns the number of samples implied by the dimensions.
func (h *Header) Points() int { return models.Points(h.Dimensions) }

// Normalized returns a copy with every omitted value replaced by its
// default. PointData is always recomputed from the dimensions.
func (h *Header) Normalized() *Header {
	n := *h
	n.Version = Version
	n.Mode = ModeBinary
	n.Dataset = DatasetStructuredPoints
	n.ScalarType = ScalarFloat
	if n.Spacing == ([3]float64{}) {
		n.Spacing = models.DefaultSpacing
	}
	if n.Scalars == "" {
		n.Scalars = DefaultField
	}
	if n.Title == "" {
		n.Title = n.Scalars
	}
	n.PointData = n.Points()
	return &n
}

// Volume returns an empty volume carrying the header's geometry.
func (h *Header) Volume() *models.Volume {
	return &models.Volume{
		Title:   h.Title,
		Field:   h.Scalars,
		Dims:    h.Dimensions,
		Origin:  h.Origin,
		Spacing: h.Spacing,
	}
}

// HeaderFromVolume builds the header describing v.
func HeaderFromVolume(v *models.Volume) *Header {
	h := &Header{
		Title:      v.Title,
		Dimensions: v.Dims,
		Origin:     v.Origin,
		Spacing:    v.Spacing,
		Scalars:    v.Field,
	}
	return h.Normalized()
}

// readLine returns the next line without its terminating newline. budget
// is the number of bytes still allowed; the line may not exceed it.
func readLine(r *bufio.Reader, budget int) (line string, n int, err error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		n += len(chunk)
		if n > budget {
			return "", n, errors.Wrapf(ErrFormat, "no %q line within %d bytes", Terminator, budget)
		}
		buf = append(buf, chunk...)
		switch err {
		case nil:
			return string(bytes.TrimRight(buf, "\r\n")), n, nil
		case bufio.ErrBufferFull:
			continue
		default:
			return string(buf), n, err
		}
	}
}

// ReadHeader scans a full header up to and including the terminator line.
// The reader is left positioned at the first payload byte.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	var lines []string
	used := 0
	for {
		line, n, err := readLine(r, MaxHeaderBytes-used)
		used += n
		if err != nil {
			if errors.Is(err, ErrFormat) {
				return nil, err
			}
			if err == io.EOF {
				return nil, errors.Wrapf(ErrFormat, "stream ended after %d header bytes without %q", used, Terminator)
			}
			return nil, errors.Wrap(err, "read header")
		}
		if strings.TrimSpace(line) == Terminator {
			break
		}
		lines = append(lines, line)
	}
	return parseHeader(lines)
}

func parseHeader(lines []string) (*Header, error) {
	if len(lines) < 3 {
		return nil, errors.Wrapf(ErrFormat, "header has %d lines before %q", len(lines), Terminator)
	}
	h := &Header{
		Version:    strings.TrimSpace(lines[0]),
		Title:      strings.TrimSpace(lines[1]),
		Mode:       strings.TrimSpace(lines[2]),
		Origin:     models.DefaultOrigin,
		Spacing:    models.DefaultSpacing,
		ScalarType: ScalarFloat,
	}
	if !strings.HasPrefix(h.Version, "#") {
		return nil, errors.Wrapf(ErrFormat, "bad format tag %q", h.Version)
	}
	if h.Mode != ModeBinary {
		return nil, errors.Wrapf(ErrFormat, "unsupported mode %q", h.Mode)
	}

	var haveDims bool
	for _, line := range lines[3:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		key, vals := fields[0], fields[1:]
		var err error
		switch key {
		case "DATASET":
			h.Dataset = strings.Join(vals, " ")
		case "DIMENSIONS":
			h.Dimensions, err = parseInts(vals)
			haveDims = err == nil
		case "ORIGIN":
			h.Origin, err = parseFloats(vals)
		case "SPACING":
			h.Spacing, err = parseFloats(vals)
		case "POINT_DATA":
			if len(vals) != 1 {
				err = fmt.Errorf("expected one value, got %d", len(vals))
				break
			}
			h.PointData, err = strconv.Atoi(vals[0])
		case "SCALARS":
			h.Scalars, h.ScalarType, err = parseScalars(vals)
		}
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "%s: %v", key, err)
		}
	}

	if h.Dataset != DatasetStructuredPoints {
		return nil, errors.Wrapf(ErrFormat, "unsupported dataset %q", h.Dataset)
	}
	if !haveDims {
		return nil, errors.Wrap(ErrFormat, "missing DIMENSIONS")
	}
	if h.Scalars == "" {
		return nil, errors.Wrap(ErrFormat, "missing SCALARS")
	}
	if h.PointData == 0 {
		h.PointData = h.Points()
	} else if h.PointData != h.Points() {
		return nil, errors.Wrapf(ErrFormat, "POINT_DATA %d does not match DIMENSIONS %v", h.PointData, h.Dimensions)
	}
	return h, nil
}

func parseInts(vals []string) ([3]int, error) {
	var out [3]int
	if len(vals) != 3 {
		return out, fmt.Errorf("expected 3 values, got %d", len(vals))
	}
	for i, s := range vals {
		n, err := strconv.Atoi(s)
		if err != nil {
			return out, err
		}
		if n <= 0 {
			return out, fmt.Errorf("non-positive dimension %d", n)
		}
		out[i] = n
	}
	return out, nil
}

func parseFloats(vals []string) ([3]float64, error) {
	var out [3]float64
	if len(vals) != 3 {
		return out, fmt.Errorf("expected 3 values, got %d", len(vals))
	}
	for i, s := range vals {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}

func parseScalars(vals []string) (name, typ string, err error) {
	if len(vals) == 0 {
		return "", "", fmt.Errorf("missing field name")
	}
	typ = ScalarFloat
	if len(vals) > 1 {
		typ = vals[1]
	}
	if typ != ScalarFloat {
		return "", "", fmt.Errorf("unsupported scalar type %q", typ)
	}
	return vals[0], typ, nil
}

// ReadNextFieldHeader reads the short header that precedes every field
// after the first one. Geometry is inherited from first. It returns io.EOF
// when the stream ends cleanly before another field.
func ReadNextFieldHeader(r *bufio.Reader, first *Header) (*Header, error) {
	h := *first
	h.Scalars = ""
	used := 0
	sawText := false
	for {
		line, n, err := readLine(r, MaxPartialHeaderBytes-used)
		used += n
		if err != nil {
			if err == io.EOF && !sawText && strings.TrimSpace(line) == "" {
				return nil, io.EOF
			}
			if err == io.EOF {
				return nil, errors.Wrapf(ErrFormat, "field header truncated after %d bytes", used)
			}
			if errors.Is(err, ErrFormat) {
				return nil, err
			}
			return nil, errors.Wrap(err, "read field header")
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		sawText = true
		if trimmed == Terminator {
			break
		}
		fields := strings.Fields(trimmed)
		if fields[0] == "SCALARS" {
			h.Scalars, h.ScalarType, err = parseScalars(fields[1:])
			if err != nil {
				return nil, errors.Wrapf(ErrFormat, "SCALARS: %v", err)
			}
		}
	}
	if h.Scalars == "" {
		return nil, errors.Wrap(ErrFormat, "field header without SCALARS")
	}
	return &h, nil
}

func formatTriplet(v [3]float64) string {
	return fmt.Sprintf("%s %s %s",
		strconv.FormatFloat(v[0], 'g', -1, 64),
		strconv.FormatFloat(v[1], 'g', -1, 64),
		strconv.FormatFloat(v[2], 'g', -1, 64))
}

// WriteHeader writes a full header. Omitted values take their defaults and
// POINT_DATA is derived from the dimensions whatever h says.
func WriteHeader(w io.Writer, h *Header) error {
	n := h.Normalized()
	if n.PointData == 0 {
		return errors.Wrapf(ErrFormat, "cannot write header with dimensions %v", n.Dimensions)
	}
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\nDATASET %s\nDIMENSIONS %d %d %d\nORIGIN     %s\nSPACING    %s\nPOINT_DATA %d\nSCALARS %s %s\n%s\n",
		n.Version, n.Title, n.Mode, n.Dataset,
		n.Dimensions[0], n.Dimensions[1], n.Dimensions[2],
		formatTriplet(n.Origin), formatTriplet(n.Spacing),
		n.PointData, n.Scalars, n.ScalarType, Terminator)
	return errors.Wrap(err, "write header")
}

// WritePartialHeader writes the header segment that introduces an
// additional field sharing the first field's geometry.
func WritePartialHeader(w io.Writer, field string) error {
	if field == "" {
		field = DefaultField
	}
	_, err := fmt.Fprintf(w, "\nSCALARS %s %s\n%s\n", field, ScalarFloat, Terminator)
	return errors.Wrap(err, "write field header")
}

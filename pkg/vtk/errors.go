package vtk

import "github.com/pkg/errors"

var (
	// ErrFormat reports a header that does not follow the structured-points
	// layout, including one whose terminator is not found within the scan
	// window.
	ErrFormat = errors.New("vtk: malformed header")

	// ErrTruncatedData reports a payload shorter than the header declares.
	ErrTruncatedData = errors.New("vtk: truncated payload")
)

// Package hash computes content keys used to compare volumes across
// write/read round trips.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"

	"latticevol/internal/models"
)

// geometryDump prints the grid description of a volume the same way on
// every run.
var geometryDump = spew.ConfigState{
	SortKeys:                true,
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Volume returns the 128-bit FNV-1a content key of v as 32 hex digits.
// The field name, grid geometry and samples take part; the title does not,
// so a file keeps its key when renamed.
func Volume(v *models.Volume) string {
	h := fnv.New128a()
	geometryDump.Fprintf(h, "%s|%v|%v|%v|", v.Field, v.Dims, v.Origin, v.Spacing)
	// Encoding a []float32 into a hash cannot fail.
	if err := gob.NewEncoder(h).Encode(v.Data); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Equal reports whether a and b have the same content key.
func Equal(a, b *models.Volume) bool {
	return Volume(a) == Volume(b)
}

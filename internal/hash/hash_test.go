package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"latticevol/internal/models"
)

func TestVolumeKey(t *testing.T) {
	v := models.NewVolume([3]int{3, 2, 2})
	for i := range v.Data {
		v.Data[i] = float32(i) / 3
	}
	v.Title = "a.vtk"
	key := Volume(v)
	assert.Len(t, key, 32)
	assert.Equal(t, key, Volume(v))

	c := v.Clone()
	c.Title = "b.vtk"
	assert.Equal(t, key, Volume(c), "title is not part of the key")
	assert.True(t, Equal(v, c))

	c.Data[4] += 1e-6
	assert.NotEqual(t, key, Volume(c))

	c = v.Clone()
	c.Spacing[2] = 2
	assert.NotEqual(t, key, Volume(c))

	c = v.Clone()
	c.Origin[0] = -1
	assert.False(t, Equal(v, c))

	c = v.Clone()
	c.Field = "density"
	assert.NotEqual(t, key, Volume(c))
}

func TestVolumeKeySeparatesDims(t *testing.T) {
	// same samples laid out on a different grid
	a := models.NewVolume([3]int{4, 3, 1})
	b := models.NewVolume([3]int{3, 4, 1})
	assert.False(t, Equal(a, b))
}

package terrastream

import (
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStyle(t *testing.T) {
	cfg, err := ParseConfig("test.hcl", []byte(testConfigSource))
	require.NoError(t, err)

	style, err := NewStyle(cfg)
	require.NoError(t, err)

	surface := style.Surface("terrain")
	require.NotNil(t, surface)
	assert.Equal(t, 0, surface.Index)
	assert.Equal(t, 5, surface.MetaOrder)
	assert.Equal(t, LODRange{0, 18}, surface.LODRange)

	layer := style.BoundLayer("sat")
	require.NotNil(t, layer)
	require.Len(t, surface.BoundLayers, 1)
	assert.Same(t, layer, surface.BoundLayers[0])
	assert.Equal(t, float32(0.5), layer.Opacity)
	assert.True(t, layer.HasAvailability())

	assert.Nil(t, style.Surface("water"))
}

func TestNewStyleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  string
	}{
		{
			name: "unknown bound layer",
			src: `surface "terrain" {
  mesh_url = "m"
  meta_url = "mt"
  bound_layers = ["nope"]
}`,
			err: `unknown bound_layer "nope"`,
		},
		{
			name: "inverted lod range",
			src: `surface "terrain" {
  mesh_url = "m"
  meta_url = "mt"
  lod_range = [9, 3]
}`,
			err: "invalid lod_range",
		},
		{
			name: "short lod range",
			src: `bound_layer "sat" {
  url = "s"
  lod_range = [3]
}`,
			err: "lod_range needs 2 values",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig("test.hcl", []byte(tt.src))
			require.NoError(t, err)
			_, err = NewStyle(cfg)
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestLODRange(t *testing.T) {
	r := LODRange{3, 10}
	assert.True(t, r.Contains(3))
	assert.True(t, r.Contains(10))
	assert.False(t, r.Contains(2))
	assert.False(t, r.Contains(11))
	assert.Equal(t, 3, r.Clamp(0))
	assert.Equal(t, 7, r.Clamp(7))
	assert.Equal(t, 10, r.Clamp(20))
}

func TestExpandURL(t *testing.T) {
	id := maptile.New(3, 5, 3)
	assert.Equal(t, "tiles/3/3/5-2.bin", expandURL("tiles/{lod}/{x}/{y}-{sub}.bin", id, 2))
	assert.Equal(t, "q/213.jpg", expandURL("q/{quad}.jpg", id, 0))
	assert.Equal(t, "q/00.jpg", expandURL("q/{quad}.jpg", maptile.New(0, 0, 2), 0))
	assert.Equal(t, "q/.jpg", expandURL("q/{quad}.jpg", maptile.New(0, 0, 0), 0))
	assert.Equal(t, "static.bin", expandURL("static.bin", id, 0))
}

func TestParseTileID(t *testing.T) {
	id, err := ParseTileID("12-2200-1343")
	require.NoError(t, err)
	assert.Equal(t, maptile.New(2200, 1343, 12), id)
	assert.Equal(t, "12-2200-1343", tileString(id))

	for _, bad := range []string{"", "1-2", "a-b-c", "2-4-0", "31-0-0", "1-0--1"} {
		_, err := ParseTileID(bad)
		assert.Error(t, err, bad)
	}
}

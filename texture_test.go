package terrastream

import (
	"image/color"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b1naryth1ef/terrastream/codec"
)

func testLayer() *BoundLayer {
	return &BoundLayer{
		ID:       "sat",
		URL:      "sat/{lod}-{x}-{y}.png",
		MetaURL:  "avail/{lod}-{x}-{y}.png",
		LODRange: LODRange{3, 18},
		Opacity:  1,
	}
}

func boundTexture(node *ResourceNode, layer *BoundLayer) *Texture {
	binding := LayerBinding{Layer: layer}
	return node.GetTexture(binding.sourcePath(node.ID()), TextureColor, binding, true)
}

func TestBoundTextureWalksToAncestor(t *testing.T) {
	env := newTestEnv(t, testSettings(), nil)
	env.loader.serve["avail/5-0-0.png"] = testAvailability(t, 0)
	env.loader.serve["avail/4-0-0.png"] = testAvailability(t, 0)
	env.loader.serve["avail/3-0-0.png"] = testAvailability(t, codec.TileExists|codec.MaskAbsent)
	env.loader.serve["sat/3-0-0.png"] = testPNG(t, 4, 4, color.White)

	node := env.m.FindNode(maptile.New(0, 0, 5), true)
	tex := boundTexture(node, testLayer())

	require.True(t, env.pump(20, func() bool { return tex.IsReady(false, 0, false) }))

	resolved, source := tex.Resolved()
	require.NotNil(t, resolved)
	assert.Equal(t, maptile.New(0, 0, 3), source.ID())
	assert.Equal(t, CheckPass, resolved.CheckStatus())
	assert.False(t, tex.NeverReady())
	assert.False(t, node.TakeResetDrawCommands())

	main, mask := tex.Buffers()
	assert.NotNil(t, main)
	assert.Nil(t, mask)
	assert.Equal(t, [4]float32{0.25, 0.25, 0, 0}, tex.UVTransform())

	assert.Equal(t, 0, env.loader.count("sat/5-0-0.png"))
	assert.Equal(t, 0, env.loader.count("sat/4-0-0.png"))
	assert.Equal(t, 1, env.loader.count("sat/3-0-0.png"))
}

func TestBoundTextureNeverReadyPastMinimumLOD(t *testing.T) {
	env := newTestEnv(t, testSettings(), nil)
	for _, url := range []string{"avail/5-0-0.png", "avail/4-0-0.png", "avail/3-0-0.png"} {
		env.loader.serve[url] = testAvailability(t, 0)
	}

	node := env.m.FindNode(maptile.New(0, 0, 5), true)
	tex := boundTexture(node, testLayer())

	assert.False(t, env.pump(20, func() bool { return tex.IsReady(false, 0, false) }))
	assert.True(t, tex.NeverReady())
	assert.True(t, node.TakeResetDrawCommands())
	assert.False(t, node.TakeResetDrawCommands())

	// The walk stopped at the layer's minimum LOD.
	assert.Equal(t, 0, env.loader.count("avail/2-0-0.png"))

	loads := len(env.loader.loads)
	assert.False(t, tex.IsReady(false, 0, false))
	assert.Len(t, env.loader.loads, loads)
}

func TestBoundTextureWithMask(t *testing.T) {
	layer := testLayer()
	layer.MaskURL = "mask/{lod}-{x}-{y}.png"

	env := newTestEnv(t, testSettings(), nil)
	env.loader.serve["avail/5-0-0.png"] = testAvailability(t, codec.TileExists)
	env.loader.serve["sat/5-1-2.png"] = testPNG(t, 4, 4, color.White)
	env.loader.serve["mask/5-1-2.png"] = testPNG(t, 4, 4, color.Black)

	node := env.m.FindNode(maptile.New(1, 2, 5), true)
	tex := boundTexture(node, layer)

	require.True(t, env.pump(10, func() bool { return tex.IsReady(false, 0, false) }))

	_, source := tex.Resolved()
	assert.Same(t, node, source)
	assert.True(t, tex.HasMask())
	main, mask := tex.Buffers()
	assert.NotNil(t, main)
	assert.NotNil(t, mask)
	assert.Equal(t, [4]float32{1, 1, 0, 0}, tex.UVTransform())

	// The availability image lives on the block origin node.
	origin := env.m.FindNode(maptile.New(0, 0, 5), false)
	require.NotNil(t, origin)
	assert.Equal(t, 1, env.loader.count("avail/5-0-0.png"))
}

func TestBoundTextureFailedLoadFallsBack(t *testing.T) {
	settings := testSettings()
	settings.MaxRetryCount = 0
	layer := testLayer()
	layer.MetaURL = ""

	env := newTestEnv(t, settings, nil)
	env.loader.fail["sat/4-2-2.png"] = assert.AnError
	env.loader.serve["sat/3-1-1.png"] = testPNG(t, 2, 2, color.White)

	node := env.m.FindNode(maptile.New(2, 2, 4), true)
	tex := boundTexture(node, layer)

	require.True(t, env.pump(10, func() bool { return tex.IsReady(false, 0, false) }))
	_, source := tex.Resolved()
	assert.Equal(t, maptile.New(1, 1, 3), source.ID())
	assert.Equal(t, [4]float32{0.5, 0.5, 0, 0}, tex.UVTransform())
}

func TestBoundTextureFailedMaskFallsBack(t *testing.T) {
	settings := testSettings()
	settings.MaxRetryCount = 0
	layer := testLayer()
	layer.MaskURL = "mask/{lod}-{x}-{y}.png"

	env := newTestEnv(t, settings, nil)
	env.loader.serve["avail/5-0-0.png"] = testAvailability(t, codec.TileExists)
	env.loader.serve["avail/4-0-0.png"] = testAvailability(t, codec.TileExists|codec.MaskAbsent)
	env.loader.serve["sat/5-0-0.png"] = testPNG(t, 4, 4, color.White)
	env.loader.serve["sat/4-0-0.png"] = testPNG(t, 4, 4, color.White)
	env.loader.fail["mask/5-0-0.png"] = assert.AnError

	node := env.m.FindNode(maptile.New(0, 0, 5), true)
	tex := boundTexture(node, layer)

	require.True(t, env.pump(20, func() bool { return tex.IsReady(false, 0, false) }))
	_, source := tex.Resolved()
	assert.Equal(t, maptile.New(0, 0, 4), source.ID())
	assert.False(t, tex.HasMask())
	assert.False(t, tex.NeverReady())
	assert.Equal(t, 1, env.loader.count("mask/5-0-0.png"))
}

func TestHeightMapTextureClampsToSurfaceLOD(t *testing.T) {
	surface := &Surface{
		ID:           "terrain",
		HeightmapURL: "hmap/{lod}-{x}-{y}.png",
		LODRange:     LODRange{0, 2},
	}
	env := newTestEnv(t, testSettings(), nil)
	env.loader.serve["hmap/2-1-1.png"] = testPNG(t, 8, 8, color.Gray{Y: 128})

	node := env.m.FindNode(maptile.New(5, 6, 4), true)
	binding := HeightMapBinding{Surface: surface}
	tex := node.GetTexture(binding.sourcePath(node.ID()), TextureHeight, binding, true)

	require.True(t, env.pump(5, func() bool { return tex.IsReady(false, 0, true) }))
	_, source := tex.Resolved()
	assert.Equal(t, maptile.New(1, 1, 2), source.ID())
	assert.Equal(t, 0, env.loader.count("hmap/4-5-6.png"))
	assert.Equal(t, [4]float32{0.25, 0.25, 0.25, 0.5}, tex.UVTransform())
}

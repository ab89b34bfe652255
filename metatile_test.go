package terrastream

import (
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b1naryth1ef/terrastream/codec"
)

func TestMetatileCloneAcrossSurfaces(t *testing.T) {
	a := &Surface{ID: "a", MetaURL: "meta/{lod}-{x}-{y}.mt", MetaOrder: 5, LODRange: LODRange{0, 20}}
	b := &Surface{ID: "b", MetaURL: "meta/{lod}-{x}-{y}.mt", MetaOrder: 5, LODRange: LODRange{0, 20}}
	c := &Surface{ID: "c", MetaURL: "other/{lod}-{x}-{y}.mt", MetaOrder: 5, LODRange: LODRange{0, 20}}
	style := &Style{Surfaces: []*Surface{a, b, c}}

	env := newTestEnv(t, testSettings(), style)
	env.loader.serve["meta/3-0-0.mt"] = testMetatile(3, 0, 0, 8, codec.Metanode{Flags: codec.MetanodeGeometry})

	node := env.m.FindNode(maptile.New(0, 0, 3), true)
	mtA := node.GetMetatile(a, true)
	mtB := node.GetMetatile(b, true)

	require.NotNil(t, mtA)
	require.NotNil(t, mtB)
	assert.NotSame(t, mtA, mtB)
	assert.Same(t, a, mtA.Surface())
	assert.Same(t, b, mtB.Surface())
	assert.Equal(t, "meta/3-0-0.mt", mtA.URL())
	assert.Equal(t, mtA.URL(), mtB.URL())

	assert.Same(t, mtA, node.GetMetatile(a, false))
	assert.Same(t, mtB, node.GetMetatile(b, false))
	assert.Nil(t, node.GetMetatile(c, false))

	require.True(t, env.pump(3, func() bool { return mtA.IsReady(false, 0, true) }))
	assert.True(t, mtB.IsReady(true, 0, true))
	assert.Same(t, mtA.Grid(), mtB.Grid())
	assert.Equal(t, 1, env.loader.count("meta/3-0-0.mt"))

	mn, ok := mtB.Metanode(maptile.New(7, 7, 3))
	require.True(t, ok)
	assert.True(t, mn.Flags.Has(codec.MetanodeGeometry))
	_, ok = mtB.Metanode(maptile.New(7, 7, 4))
	assert.False(t, ok)
}

func TestMetatileNodeSurface(t *testing.T) {
	a := &Surface{ID: "a", MetaURL: "meta/{lod}-{x}-{y}.mt", MetaOrder: 5}
	b := &Surface{ID: "b", MetaURL: "meta/{lod}-{x}-{y}.mt", MetaOrder: 5}
	style := &Style{Surfaces: []*Surface{a, b}}
	env := newTestEnv(t, testSettings(), style)

	mt := env.m.Root().GetMetatile(b, true)
	assert.Same(t, b, mt.NodeSurface(codec.Metanode{SurfaceReference: 0}))
	assert.Same(t, a, mt.NodeSurface(codec.Metanode{SurfaceReference: 1}))
	assert.Same(t, b, mt.NodeSurface(codec.Metanode{SurfaceReference: 2}))
	assert.Nil(t, mt.NodeSurface(codec.Metanode{SurfaceReference: 9}))
}

func TestSurfaceMetatileID(t *testing.T) {
	s := &Surface{MetaURL: "meta/{lod}-{x}-{y}.mt", MetaOrder: 5}
	id := maptile.New(70, 33, 8)

	assert.Equal(t, maptile.New(64, 32, 8), s.MetatileID(id))
	assert.Equal(t, "meta/8-64-32.mt", s.MetaPath(id))
	assert.Equal(t, maptile.New(0, 0, 3), s.MetatileID(maptile.New(7, 5, 3)))
}

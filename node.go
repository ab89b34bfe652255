package terrastream

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// ResourceNode is one tile of the resource quadtree. It owns every
// resource fetched for its tile, keyed by source path so the same URL is
// never fetched twice for one tile.
type ResourceNode struct {
	m        *Map
	id       maptile.Tile
	parent   *ResourceNode
	children [4]*ResourceNode

	meshes      map[string]*Mesh
	textures    map[string]*Texture
	subtextures map[string]*Subtexture
	geodata     map[string]*Geodata
	pointClouds map[string]*PointCloud
	metatiles   []*Metatile
	resources   []*resource
	rigs        map[*Surface]*TileRenderRig

	lastFrame         int
	killed            bool
	resetDrawCommands bool
}

func newResourceNode(m *Map, parent *ResourceNode, id maptile.Tile) *ResourceNode {
	return &ResourceNode{
		m:         m,
		id:        id,
		parent:    parent,
		lastFrame: m.frame,
	}
}

func (n *ResourceNode) ID() maptile.Tile {
	return n.id
}

func (n *ResourceNode) Level() int {
	return int(n.id.Z)
}

func (n *ResourceNode) Parent() *ResourceNode {
	return n.parent
}

func (n *ResourceNode) Child(index int) *ResourceNode {
	return n.children[index]
}

func (n *ResourceNode) String() string {
	return tileString(n.id)
}

// AddChild materializes the child at index (0..3). Index 1 is the x+1
// child, 2 the y+1 child and 3 both. An existing child is returned as is.
func (n *ResourceNode) AddChild(index int) *ResourceNode {
	if child := n.children[index]; child != nil {
		return child
	}
	x, y := n.id.X<<1, n.id.Y<<1
	switch index {
	case 1:
		x++
	case 2:
		y++
	case 3:
		x++
		y++
	}
	child := newResourceNode(n.m, n, maptile.New(x, y, n.id.Z+1))
	n.children[index] = child
	return child
}

func (n *ResourceNode) RemoveChildByIndex(index int) {
	if child := n.children[index]; child != nil {
		n.children[index] = nil
		child.Kill()
	}
}

func (n *ResourceNode) RemoveChild(child *ResourceNode) {
	if child == nil {
		return
	}
	n.detach(child)
	child.Kill()
}

func (n *ResourceNode) detach(child *ResourceNode) {
	for i := range n.children {
		if n.children[i] == child {
			n.children[i] = nil
		}
	}
}

// Kill kills the whole subtree, releases every resource it owns and
// detaches the node from its parent. Killing twice is a no-op.
func (n *ResourceNode) Kill() {
	if n.killed {
		return
	}
	n.killed = true

	for i, child := range n.children {
		n.children[i] = nil
		if child != nil {
			child.Kill()
		}
	}

	for _, r := range n.resources {
		r.release()
	}
	n.resources = nil
	n.meshes = nil
	n.textures = nil
	n.subtextures = nil
	n.geodata = nil
	n.pointClouds = nil
	n.metatiles = nil
	n.rigs = nil

	if parent := n.parent; parent != nil {
		n.parent = nil
		parent.detach(n)
	}
}

func (n *ResourceNode) Killed() bool {
	return n.killed
}

// TakeResetDrawCommands reports and clears the request, raised by a
// texture that became permanently unready, to rebuild this tile's draw
// commands.
func (n *ResourceNode) TakeResetDrawCommands() bool {
	reset := n.resetDrawCommands
	n.resetDrawCommands = false
	return reset
}

func (n *ResourceNode) GetMesh(path string) *Mesh {
	if mesh, ok := n.meshes[path]; ok {
		return mesh
	}
	if n.meshes == nil {
		n.meshes = make(map[string]*Mesh)
	}
	mesh := newMesh(n, path)
	n.meshes[path] = mesh
	return mesh
}

// GetTexture returns the texture for path. Textures bound to a layer or a
// height map are keyed by path and binding, so two layers sharing a URL
// still get separate textures. extraBound marks a texture that delegates
// to the bound source tile, walking to ancestors when needed.
func (n *ResourceNode) GetTexture(path string, kind TextureKind, binding TextureBinding, extraBound bool) *Texture {
	if binding == nil {
		binding = NoBinding{}
	}
	key := path
	if k := binding.key(); k != "" {
		key += "#" + k
	}
	if extraBound {
		key += "#bound"
	}

	if tex, ok := n.textures[key]; ok {
		return tex
	}
	if n.textures == nil {
		n.textures = make(map[string]*Texture)
	}
	tex := newTexture(n, path, kind, binding, extraBound)
	n.textures[key] = tex
	return tex
}

func (n *ResourceNode) GetSubtexture(path string, kind TextureKind) *Subtexture {
	if sub, ok := n.subtextures[path]; ok {
		return sub
	}
	if n.subtextures == nil {
		n.subtextures = make(map[string]*Subtexture)
	}
	sub := newSubtexture(n, path, kind)
	n.subtextures[path] = sub
	return sub
}

func (n *ResourceNode) GetGeodata(path string, info GeodataInfo) *Geodata {
	if geodata, ok := n.geodata[path]; ok {
		return geodata
	}
	if n.geodata == nil {
		n.geodata = make(map[string]*Geodata)
	}
	geodata := newGeodata(n, path, info)
	n.geodata[path] = geodata
	return geodata
}

// GetPointCloud returns the point cloud stored in bytes
// [offset, offset+size) of path. Several tiles may share one file.
func (n *ResourceNode) GetPointCloud(path string, offset, size int64) *PointCloud {
	key := fmt.Sprintf("%s@%d", path, offset)
	if pc, ok := n.pointClouds[key]; ok {
		return pc
	}
	if n.pointClouds == nil {
		n.pointClouds = make(map[string]*PointCloud)
	}
	pc := newPointCloud(n, path, offset, size)
	n.pointClouds[key] = pc
	return pc
}

// GetMetatile returns this node's metatile for surface. Surfaces whose
// metatile URL resolves to the same path share one download: the existing
// metatile is cloned for the new surface. Without a match a new metatile
// is created only when allowCreation is set, otherwise nil is returned.
func (n *ResourceNode) GetMetatile(surface *Surface, allowCreation bool) *Metatile {
	for _, mt := range n.metatiles {
		if mt.surface == surface {
			return mt
		}
	}

	path := surface.MetaPath(n.id)
	for _, mt := range n.metatiles {
		if mt.res.url == path {
			clone := mt.clone(surface)
			n.metatiles = append(n.metatiles, clone)
			return clone
		}
	}

	if !allowCreation {
		return nil
	}
	mt := newMetatile(n, path, surface)
	n.metatiles = append(n.metatiles, mt)
	return mt
}

package terrastream

import (
	"github.com/b1naryth1ef/terrastream/codec"
	"github.com/b1naryth1ef/terrastream/gpu"
)

type drawCommand struct {
	submesh  int
	texture  *Texture
	opacity  float32
	internal bool
}

// TileRenderRig is what the traversal talks to for one visible tile and
// surface. It resolves the tile's metanode, pulls in the mesh and the
// textures each submesh needs, and only reports ready once all of them
// are resident.
type TileRenderRig struct {
	node    *ResourceNode
	surface *Surface

	resolved bool
	empty    bool
	metanode codec.Metanode

	mesh      *Mesh
	heightmap *Texture
	geodata   *Geodata

	commands      []drawCommand
	commandsBuilt bool
}

// Rig returns the render rig for surface at this node, creating it on
// first use.
func (n *ResourceNode) Rig(surface *Surface) *TileRenderRig {
	if rig, ok := n.rigs[surface]; ok {
		return rig
	}
	if n.rigs == nil {
		n.rigs = make(map[*Surface]*TileRenderRig)
	}
	rig := &TileRenderRig{node: n, surface: surface}
	n.rigs[surface] = rig
	return rig
}

// resolve looks the tile up in its metatile. A tile without geometry for
// this surface, or whose metatile could not be loaded at all, is empty:
// it is always ready and draws nothing.
func (r *TileRenderRig) resolve(doNotLoad bool, priority float64) bool {
	if r.resolved {
		return true
	}

	id := r.node.id
	s := r.surface
	if !s.LODRange.Contains(int(id.Z)) {
		r.resolved, r.empty = true, true
		return true
	}

	origin := r.node.m.FindNode(s.MetatileID(id), true)
	mt := origin.GetMetatile(s, true)
	if mt.Failed() {
		r.resolved, r.empty = true, true
		return true
	}
	if !mt.IsReady(doNotLoad, priority, true) {
		return false
	}

	mn, ok := mt.Metanode(id)
	r.resolved = true
	r.metanode = mn
	if !ok || !mn.Flags.Has(codec.MetanodeGeometry) || mt.NodeSurface(mn) != s {
		r.empty = true
		return true
	}

	r.mesh = r.node.GetMesh(s.MeshPath(id))
	if s.HeightmapURL != "" {
		binding := HeightMapBinding{Surface: s}
		r.heightmap = r.node.GetTexture(binding.sourcePath(id), TextureHeight, binding, true)
	}
	if s.GeodataURL != "" {
		r.geodata = r.node.GetGeodata(expandURL(s.GeodataURL, id, 0), GeodataInfo{Surface: s})
	}
	return true
}

func (r *TileRenderRig) buildDrawCommands() {
	r.commands = r.commands[:0]
	id := r.node.id
	level := r.node.Level()

	for i, sm := range r.mesh.Submeshes() {
		start := len(r.commands)

		if sm.Flags.Has(codec.SubmeshInternalUV) && r.surface.TextureURL != "" {
			tex := r.node.GetTexture(r.surface.TexturePath(id, i), TextureColor, NoBinding{}, false)
			if !tex.NeverReady() {
				r.commands = append(r.commands, drawCommand{submesh: i, texture: tex, opacity: 1, internal: true})
			}
		}

		if sm.Flags.Has(codec.SubmeshExternalUV) {
			for li, layer := range r.surface.BoundLayers {
				if sm.Flags.Has(codec.SubmeshTextureMode) && int(sm.TextureLayer) != li {
					continue
				}
				if level < layer.LODRange[0] {
					continue
				}
				binding := LayerBinding{Layer: layer}
				tex := r.node.GetTexture(binding.sourcePath(id), TextureColor, binding, true)
				if tex.NeverReady() {
					continue
				}
				r.commands = append(r.commands, drawCommand{submesh: i, texture: tex, opacity: layer.Opacity})
			}
		}

		if len(r.commands) == start {
			r.commands = append(r.commands, drawCommand{submesh: i, opacity: 1})
		}
	}
	r.commandsBuilt = true
}

func (r *TileRenderRig) ensureCommands() {
	if r.node.TakeResetDrawCommands() {
		r.commandsBuilt = false
	}
	if !r.commandsBuilt {
		r.buildDrawCommands()
	}
}

// IsReady reports whether the tile can be drawn at full fidelity. Every
// resource is polled even after one reports unready so that all missing
// loads get scheduled in the same frame.
func (r *TileRenderRig) IsReady(doNotLoad bool, priority float64, doNotCheckGPU bool) bool {
	if !r.resolve(doNotLoad, priority) {
		return false
	}
	if r.empty {
		return true
	}
	if !r.mesh.IsReady(doNotLoad, priority, doNotCheckGPU) {
		return false
	}

	r.ensureCommands()
	ready := true
	for _, cmd := range r.commands {
		if cmd.texture != nil && !cmd.texture.IsReady(doNotLoad, priority, doNotCheckGPU) {
			ready = false
		}
	}
	if r.node.resetDrawCommands {
		// A texture gave up while being polled; rebuild before drawing.
		r.commandsBuilt = false
		return false
	}
	return ready
}

// IsFallbackReady is the relaxed check used for ancestors drawn in place
// of a missing tile: the mesh and the surface's own textures must be
// resident, bound layers may still be loading.
func (r *TileRenderRig) IsFallbackReady(priority float64) bool {
	if !r.resolve(false, priority) {
		return false
	}
	if r.empty {
		return true
	}
	if !r.mesh.IsReady(false, priority, false) {
		return false
	}

	r.ensureCommands()
	ready := true
	for _, cmd := range r.commands {
		if cmd.internal && !cmd.texture.IsReady(false, priority, false) {
			ready = false
		}
	}
	return ready
}

// Draw issues the tile's draw calls and returns how many were issued.
// Commands whose texture is not resident are skipped, which only happens
// when the rig is drawn as a fallback.
func (r *TileRenderRig) Draw(drawer gpu.Drawer) int {
	if r.empty || r.mesh == nil {
		return 0
	}

	id := r.node.id
	calls := 0
	for _, cmd := range r.commands {
		buf := r.mesh.GPUSubmesh(cmd.submesh)
		if buf == nil {
			continue
		}
		call := gpu.DrawCall{
			Mesh:        buf,
			Opacity:     cmd.opacity,
			UVTransform: [4]float32{1, 1, 0, 0},
			Level:       int(id.Z),
			X:           id.X,
			Y:           id.Y,
		}
		if cmd.texture != nil {
			tex, mask := cmd.texture.Buffers()
			if tex == nil || (cmd.texture.HasMask() && mask == nil) {
				continue
			}
			call.Texture = tex
			call.Mask = mask
			call.UVTransform = cmd.texture.UVTransform()
		}
		drawer.Draw(call)
		calls++
	}
	return calls
}

// GeodataReady reports whether the tile's geodata, and the height map
// used to clamp it to the terrain, are loaded. A tile with neither has
// nothing to wait for.
func (r *TileRenderRig) GeodataReady(priority float64) bool {
	if !r.resolve(false, priority) {
		return false
	}
	if r.empty {
		return true
	}
	ready := true
	if r.geodata != nil && !r.geodata.IsReady(false, priority, true) {
		ready = false
	}
	if r.heightmap != nil && !r.heightmap.IsReady(false, priority, true) {
		ready = false
	}
	return ready
}

func (r *TileRenderRig) Node() *ResourceNode {
	return r.node
}

func (r *TileRenderRig) Surface() *Surface {
	return r.surface
}

// Empty reports whether the tile turned out to have nothing to draw.
func (r *TileRenderRig) Empty() bool {
	return r.empty
}

func (r *TileRenderRig) Metanode() codec.Metanode {
	return r.metanode
}

func (r *TileRenderRig) Mesh() *Mesh {
	return r.mesh
}

func (r *TileRenderRig) Heightmap() *Texture {
	return r.heightmap
}

func (r *TileRenderRig) Geodata() *Geodata {
	return r.geodata
}

// Textures returns the textures of the current draw commands.
func (r *TileRenderRig) Textures() []*Texture {
	var out []*Texture
	for _, cmd := range r.commands {
		if cmd.texture != nil {
			out = append(out, cmd.texture)
		}
	}
	return out
}

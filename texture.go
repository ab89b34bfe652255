package terrastream

import (
	"log"

	"github.com/paulmach/orb/maptile"

	"github.com/b1naryth1ef/terrastream/codec"
	"github.com/b1naryth1ef/terrastream/gpu"
)

// TextureBinding says where a texture's data comes from. It is one of
// NoBinding, LayerBinding or HeightMapBinding.
type TextureBinding interface {
	key() string
	lodRange() LODRange
	sourcePath(id maptile.Tile) string
}

// NoBinding is a surface's own internal texture.
type NoBinding struct{}

func (NoBinding) key() string                       { return "" }
func (NoBinding) lodRange() LODRange                { return LODRange{0, maxLevel} }
func (NoBinding) sourcePath(id maptile.Tile) string { return "" }

// LayerBinding is a texture taken from a bound layer.
type LayerBinding struct {
	Layer *BoundLayer
}

func (b LayerBinding) key() string        { return "layer:" + b.Layer.ID }
func (b LayerBinding) lodRange() LODRange { return b.Layer.LODRange }
func (b LayerBinding) sourcePath(id maptile.Tile) string {
	return expandURL(b.Layer.URL, id, 0)
}

// HeightMapBinding is a surface height map texture.
type HeightMapBinding struct {
	Surface *Surface
}

func (b HeightMapBinding) key() string        { return "hmap:" + b.Surface.ID }
func (b HeightMapBinding) lodRange() LODRange { return b.Surface.LODRange }
func (b HeightMapBinding) sourcePath(id maptile.Tile) string {
	return expandURL(b.Surface.HeightmapURL, id, 0)
}

// CheckStatus tracks the availability check of a bound layer texture.
type CheckStatus int

const (
	CheckNone CheckStatus = iota
	CheckInProgress
	CheckPass
	CheckFail
)

type textureBound struct {
	source  *ResourceNode
	node    *ResourceNode
	texture *Texture
}

// Texture is what a draw command samples. A plain texture wraps one
// Subtexture (plus a mask when the layer has one for the tile). A bound
// texture owns no data: it delegates to the texture of its source tile
// and walks up to ancestors while that texture is unavailable, down to
// the binding's minimum LOD. Past that it becomes permanently unready.
type Texture struct {
	node    *ResourceNode
	path    string
	kind    TextureKind
	binding TextureBinding
	bound   *textureBound

	main *Subtexture
	mask *Subtexture

	checkStatus  CheckStatus
	availability *Subtexture
	neverReady   bool
}

func newTexture(node *ResourceNode, path string, kind TextureKind, binding TextureBinding, extraBound bool) *Texture {
	t := &Texture{
		node:    node,
		path:    path,
		kind:    kind,
		binding: binding,
	}
	if _, internal := binding.(NoBinding); extraBound && !internal {
		source := node
		maxLOD := binding.lodRange()[1]
		for source.Level() > maxLOD && source.parent != nil {
			source = source.parent
		}
		t.bound = &textureBound{source: source}
	}
	return t
}

func (t *Texture) IsReady(doNotLoad bool, priority float64, doNotCheckGPU bool) bool {
	if t.neverReady {
		return false
	}

	if b := t.bound; b != nil {
		if b.texture == nil || b.node.killed {
			t.setBoundTexture(b.source)
		}
		for b.texture.unavailable() {
			parent := b.node.parent
			if b.node.Level() <= t.binding.lodRange()[0] || parent == nil {
				t.markNeverReady()
				return false
			}
			t.setBoundTexture(parent)
		}
		return b.texture.IsReady(doNotLoad, priority, doNotCheckGPU)
	}

	if !t.checkAvailability(doNotLoad, priority) {
		return false
	}

	if t.main == nil {
		t.main = t.node.GetSubtexture(t.path, t.kind)
	}
	ready := t.main.IsReady(doNotLoad, priority, doNotCheckGPU)
	if t.mask != nil && !t.mask.IsReady(doNotLoad, priority, doNotCheckGPU) {
		ready = false
	}
	return ready
}

func (t *Texture) setBoundTexture(node *ResourceNode) {
	b := t.bound
	b.node = node
	b.texture = node.GetTexture(t.binding.sourcePath(node.id), t.kind, t.binding, false)
}

// unavailable reports whether a delegating texture must look further up
// the tree instead of using this one.
func (t *Texture) unavailable() bool {
	return t.neverReady ||
		t.bound != nil ||
		t.checkStatus == CheckFail ||
		(t.main != nil && t.main.Failed()) ||
		(t.mask != nil && t.mask.Failed())
}

func (t *Texture) markNeverReady() {
	t.neverReady = true
	t.node.resetDrawCommands = true
	log.Printf("[texture] %s has no usable source for tile %s", t.path, t.node)
}

func (t *Texture) checkAvailability(doNotLoad bool, priority float64) bool {
	layer, ok := t.binding.(LayerBinding)
	if !ok || !layer.Layer.HasAvailability() {
		return true
	}

	switch t.checkStatus {
	case CheckPass:
		return true
	case CheckFail:
		return false
	}

	id := t.node.id
	if t.availability != nil && t.availability.Dead() {
		t.availability = nil
	}
	if t.availability == nil {
		ox, oy := codec.AvailabilityOrigin(id.X, id.Y)
		origin := maptile.New(ox, oy, id.Z)
		node := t.node.m.FindNode(origin, true)
		t.availability = node.GetSubtexture(expandURL(layer.Layer.MetaURL, origin, 0), TextureAvailability)
		t.checkStatus = CheckInProgress
	}

	if t.availability.Failed() {
		t.checkStatus = CheckFail
		return false
	}
	if !t.availability.IsReady(doNotLoad, priority, true) {
		return false
	}

	flags := t.availability.Availability().Flags(id.X, id.Y)
	if !flags.Exists() {
		t.checkStatus = CheckFail
		return false
	}
	t.checkStatus = CheckPass
	if flags.HasMask() && layer.Layer.MaskURL != "" {
		t.mask = t.node.GetSubtexture(expandURL(layer.Layer.MaskURL, id, 0), TextureMask)
	}
	return true
}

// Resolved returns the texture that actually holds the data and the tile
// it belongs to: the texture itself, or the current delegate.
func (t *Texture) Resolved() (*Texture, *ResourceNode) {
	if t.bound == nil {
		return t, t.node
	}
	if t.bound.texture == nil {
		return nil, nil
	}
	return t.bound.texture, t.bound.node
}

// Buffers returns the GPU buffers to bind for this texture.
func (t *Texture) Buffers() (gpu.Buffer, gpu.Buffer) {
	res, _ := t.Resolved()
	if res == nil || res.main == nil {
		return nil, nil
	}
	var mask gpu.Buffer
	if res.mask != nil {
		mask = res.mask.Buffer()
	}
	return res.main.Buffer(), mask
}

// UVTransform maps this tile's texture coordinates into the resolved
// texture: {scaleX, scaleY, offsetX, offsetY}. It is the identity unless
// the data comes from an ancestor tile.
func (t *Texture) UVTransform() [4]float32 {
	_, node := t.Resolved()
	if node == nil || node == t.node {
		return [4]float32{1, 1, 0, 0}
	}
	d := t.node.id.Z - node.id.Z
	scale := 1 / float32(uint32(1)<<d)
	offX := float32(t.node.id.X-node.id.X<<d) * scale
	offY := float32(t.node.id.Y-node.id.Y<<d) * scale
	return [4]float32{scale, scale, offX, offY}
}

func (t *Texture) Path() string {
	return t.path
}

func (t *Texture) Binding() TextureBinding {
	return t.binding
}

func (t *Texture) NeverReady() bool {
	return t.neverReady
}

func (t *Texture) CheckStatus() CheckStatus {
	return t.checkStatus
}

// HasMask reports whether a mask texture is attached.
func (t *Texture) HasMask() bool {
	res, _ := t.Resolved()
	return res != nil && res.mask != nil
}

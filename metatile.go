package terrastream

import (
	"github.com/paulmach/orb/maptile"

	"github.com/b1naryth1ef/terrastream/codec"
)

type metatileData struct {
	grid *codec.Metatile
}

func (d *metatileData) parse(data []byte) (int, error) {
	grid, err := codec.DecodeMetatile(data)
	if err != nil {
		return 0, err
	}
	d.grid = grid
	return grid.Size(), nil
}

func (d *metatileData) releaseCPU() {
	d.grid = nil
}

func (d *metatileData) needsGPU() bool {
	return false
}

func (d *metatileData) buildGPU() (int, error) {
	return 0, nil
}

func (d *metatileData) releaseGPU() {}

// Metatile is the grid of metanodes covering a block of tiles for one
// surface. The grid itself is surface-agnostic: clones made for other
// surfaces share the download, load state and grid, and differ only in
// how node surface references are resolved.
type Metatile struct {
	surface *Surface
	res     *resource
	data    *metatileData
}

func newMetatile(node *ResourceNode, path string, surface *Surface) *Metatile {
	data := &metatileData{}
	return &Metatile{
		surface: surface,
		res:     newResource(node, KindMetatile, path, data),
		data:    data,
	}
}

func (mt *Metatile) clone(surface *Surface) *Metatile {
	return &Metatile{
		surface: surface,
		res:     mt.res,
		data:    mt.data,
	}
}

func (mt *Metatile) IsReady(doNotLoad bool, priority float64, doNotCheckGPU bool) bool {
	return mt.res.IsReady(doNotLoad, priority, doNotCheckGPU)
}

func (mt *Metatile) Surface() *Surface {
	return mt.surface
}

func (mt *Metatile) URL() string {
	return mt.res.url
}

func (mt *Metatile) State() LoadState {
	return mt.res.state
}

func (mt *Metatile) Failed() bool {
	return mt.res.Failed()
}

func (mt *Metatile) Dead() bool {
	return mt.res.dead
}

// Grid returns the decoded grid, or nil until loaded.
func (mt *Metatile) Grid() *codec.Metatile {
	return mt.data.grid
}

// Metanode returns the node describing tile id, which must lie at the
// metatile level inside its grid.
func (mt *Metatile) Metanode(id maptile.Tile) (codec.Metanode, bool) {
	grid := mt.data.grid
	if grid == nil || int(id.Z) != int(grid.Level) {
		return codec.Metanode{}, false
	}
	node, ok := grid.Node(id.X, id.Y)
	if !ok {
		return codec.Metanode{}, false
	}
	return *node, true
}

// NodeSurface resolves which surface a metanode's geometry belongs to. A
// zero reference means the metatile's own surface; other values index
// the style's surfaces starting at one.
func (mt *Metatile) NodeSurface(node codec.Metanode) *Surface {
	if node.SurfaceReference == 0 {
		return mt.surface
	}
	surfaces := mt.res.m.style.Surfaces
	idx := int(node.SurfaceReference) - 1
	if idx >= len(surfaces) {
		return nil
	}
	return surfaces[idx]
}

package terrastream

import (
	"github.com/paulmach/orb/maptile"

	"github.com/b1naryth1ef/terrastream/gpu"
)

// View is the set of tiles a frame wants drawn for one surface. Tiles
// coarser than TargetLevel are expanded to all their descendants at that
// level.
type View struct {
	Surface     *Surface
	Tiles       []maptile.Tile
	TargetLevel int
}

// Expand returns the tiles the view covers at its target level.
func (v View) Expand() []maptile.Tile {
	var out []maptile.Tile
	for _, t := range v.Tiles {
		if v.TargetLevel <= int(t.Z) {
			out = append(out, t)
			continue
		}
		z := maptile.Zoom(v.TargetLevel)
		lo, hi := t.Range(z)
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				out = append(out, maptile.New(x, y, z))
			}
		}
	}
	return out
}

// DrawnTile is one tile that issued draw calls in a frame, which may be
// an ancestor standing in for a requested tile.
type DrawnTile struct {
	Tile     maptile.Tile
	Fallback bool
}

type FrameResult struct {
	Frame     int
	Processed int

	Visible   int
	Ready     int
	Fallback  int
	Missing   int
	Empty     int
	DrawCalls int
	Pruned    int

	// GeodataReady counts drawn tiles whose geodata and height map are
	// resident too.
	GeodataReady int

	Drawn []DrawnTile
}

// DrawFrame runs one frame: it applies queued load completions within the
// frame budget, polls every tile of the view, draws the ready ones and
// substitutes the nearest usable ancestor for the rest, then collapses
// nodes nobody has visited for a while.
func (m *Map) DrawFrame(view View, drawer gpu.Drawer) FrameResult {
	if m.killed.Load() {
		return FrameResult{}
	}

	m.stats.ResetFlux()
	processed := m.ProcessQueue(m.settings.ProcessBudget)
	m.BeginFrame()

	res := FrameResult{Frame: m.frame, Processed: processed}
	drawn := make(map[maptile.Tile]bool)
	draw := func(rig *TileRenderRig, fallback bool) {
		id := rig.node.id
		if drawn[id] {
			return
		}
		drawn[id] = true
		res.DrawCalls += rig.Draw(drawer)
		res.Drawn = append(res.Drawn, DrawnTile{Tile: id, Fallback: fallback})
	}

	for _, id := range view.Expand() {
		res.Visible++
		node := m.FindNode(id, true)
		rig := node.Rig(view.Surface)

		if rig.IsReady(false, float64(id.Z), false) {
			if rig.Empty() {
				res.Empty++
				continue
			}
			res.Ready++
			draw(rig, false)
			if rig.GeodataReady(float64(id.Z)) {
				res.GeodataReady++
			}
			continue
		}

		if fb := m.fallbackRig(node, view.Surface); fb != nil {
			res.Fallback++
			draw(fb, true)
			continue
		}
		res.Missing++
	}

	res.Pruned = m.prune(m.root)
	return res
}

// fallbackRig returns the nearest ancestor of node that has something to
// draw, preferring full readiness but settling for fallback readiness.
func (m *Map) fallbackRig(node *ResourceNode, surface *Surface) *TileRenderRig {
	for p := node.parent; p != nil; p = p.parent {
		rig := p.Rig(surface)
		priority := float64(p.Level())
		if !rig.IsReady(true, priority, false) && !rig.IsFallbackReady(priority) {
			continue
		}
		if rig.Empty() {
			continue
		}
		return rig
	}
	return nil
}

// prune kills subtrees not visited for more than NodeTTL frames and
// returns how many subtrees were collapsed. The root is never pruned.
func (m *Map) prune(n *ResourceNode) int {
	ttl := m.settings.NodeTTL
	if ttl <= 0 {
		return 0
	}
	pruned := 0
	for i, child := range n.children {
		if child == nil {
			continue
		}
		if m.frame-child.lastFrame > ttl {
			n.RemoveChildByIndex(i)
			pruned++
			continue
		}
		pruned += m.prune(child)
	}
	return pruned
}

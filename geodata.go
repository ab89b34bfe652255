package terrastream

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeodataInfo is the context a geodata request was made in.
type GeodataInfo struct {
	Surface *Surface
}

// Geodata is a streamed GeoJSON feature collection. It lives on the CPU
// only; turning features into render buffers belongs to the label and
// line pipeline, not to the streaming core.
type Geodata struct {
	*resource

	info     GeodataInfo
	features *geojson.FeatureCollection
	bound    orb.Bound
}

func newGeodata(node *ResourceNode, path string, info GeodataInfo) *Geodata {
	g := &Geodata{info: info}
	g.resource = newResource(node, KindGeodata, path, g)
	return g
}

func (g *Geodata) parse(data []byte) (int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, err
	}

	var bound orb.Bound
	first := true
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if first {
			bound = f.Geometry.Bound()
			first = false
		} else {
			bound = bound.Union(f.Geometry.Bound())
		}
	}
	g.features = fc
	g.bound = bound
	return len(data), nil
}

func (g *Geodata) releaseCPU() {
	g.features = nil
	g.bound = orb.Bound{}
}

func (g *Geodata) needsGPU() bool {
	return false
}

func (g *Geodata) buildGPU() (int, error) {
	return 0, nil
}

func (g *Geodata) releaseGPU() {}

func (g *Geodata) Info() GeodataInfo {
	return g.info
}

// Features returns the decoded collection, or nil until loaded.
func (g *Geodata) Features() *geojson.FeatureCollection {
	return g.features
}

func (g *Geodata) Bound() orb.Bound {
	return g.bound
}

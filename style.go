package terrastream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

type LODRange [2]int

func (r LODRange) Contains(level int) bool {
	return level >= r[0] && level <= r[1]
}

// Clamp returns level limited to the range.
func (r LODRange) Clamp(level int) int {
	return max(r[0], min(level, r[1]))
}

func lodRangeFrom(v []int, def LODRange) (LODRange, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 2:
		if v[0] < 0 || v[1] < v[0] {
			return def, fmt.Errorf("invalid lod_range [%d, %d]", v[0], v[1])
		}
		return LODRange{v[0], v[1]}, nil
	default:
		return def, fmt.Errorf("lod_range needs 2 values, got %d", len(v))
	}
}

const maxLevel = 30

type Surface struct {
	ID    string
	Index int

	MeshURL      string
	TextureURL   string
	MetaURL      string
	HeightmapURL string
	GeodataURL   string

	LODRange  LODRange
	MetaOrder int

	BoundLayers []*BoundLayer
}

// MetatileID aligns id to the origin of the metatile covering it.
func (s *Surface) MetatileID(id maptile.Tile) maptile.Tile {
	return maptile.New(id.X>>s.MetaOrder<<s.MetaOrder, id.Y>>s.MetaOrder<<s.MetaOrder, id.Z)
}

func (s *Surface) MeshPath(id maptile.Tile) string {
	return expandURL(s.MeshURL, id, 0)
}

func (s *Surface) TexturePath(id maptile.Tile, sub int) string {
	return expandURL(s.TextureURL, id, sub)
}

func (s *Surface) MetaPath(id maptile.Tile) string {
	return expandURL(s.MetaURL, s.MetatileID(id), 0)
}

type BoundLayer struct {
	ID       string
	URL      string
	MaskURL  string
	MetaURL  string
	LODRange LODRange
	Opacity  float32
}

func (l *BoundLayer) HasAvailability() bool {
	return l.MetaURL != ""
}

type Style struct {
	Surfaces    []*Surface
	surfaces    map[string]*Surface
	boundLayers map[string]*BoundLayer
}

func NewStyle(cfg *Config) (*Style, error) {
	style := &Style{
		surfaces:    make(map[string]*Surface),
		boundLayers: make(map[string]*BoundLayer),
	}

	for _, block := range cfg.BoundLayers {
		lodRange, err := lodRangeFrom(block.LODRange, LODRange{0, maxLevel})
		if err != nil {
			return nil, fmt.Errorf("bound_layer %q: %w", block.Name, err)
		}
		opacity := float32(block.Opacity)
		if opacity == 0 {
			opacity = 1
		}
		style.boundLayers[block.Name] = &BoundLayer{
			ID:       block.Name,
			URL:      block.URL,
			MaskURL:  block.MaskURL,
			MetaURL:  block.MetaURL,
			LODRange: lodRange,
			Opacity:  opacity,
		}
	}

	for idx, block := range cfg.Surfaces {
		lodRange, err := lodRangeFrom(block.LODRange, LODRange{0, maxLevel})
		if err != nil {
			return nil, fmt.Errorf("surface %q: %w", block.Name, err)
		}
		surface := &Surface{
			ID:           block.Name,
			Index:        idx,
			MeshURL:      block.MeshURL,
			TextureURL:   block.TextureURL,
			MetaURL:      block.MetaURL,
			HeightmapURL: block.HeightmapURL,
			GeodataURL:   block.GeodataURL,
			LODRange:     lodRange,
			MetaOrder:    block.MetaOrder,
		}
		if surface.MetaOrder == 0 {
			surface.MetaOrder = 5
		}
		for _, name := range block.BoundLayers {
			layer, ok := style.boundLayers[name]
			if !ok {
				return nil, fmt.Errorf("surface %q references unknown bound_layer %q", block.Name, name)
			}
			surface.BoundLayers = append(surface.BoundLayers, layer)
		}
		style.Surfaces = append(style.Surfaces, surface)
		style.surfaces[surface.ID] = surface
	}

	return style, nil
}

func (s *Style) Surface(id string) *Surface {
	return s.surfaces[id]
}

func (s *Style) BoundLayer(id string) *BoundLayer {
	return s.boundLayers[id]
}

// expandURL fills a tile URL template. Supported placeholders are {lod},
// {x}, {y}, {sub} and {quad}.
func expandURL(tmpl string, id maptile.Tile, sub int) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	r := strings.NewReplacer(
		"{lod}", strconv.Itoa(int(id.Z)),
		"{x}", strconv.FormatUint(uint64(id.X), 10),
		"{y}", strconv.FormatUint(uint64(id.Y), 10),
		"{sub}", strconv.Itoa(sub),
		"{quad}", quadkey(id),
	)
	return r.Replace(tmpl)
}

func quadkey(id maptile.Tile) string {
	if id.Z == 0 {
		return ""
	}
	digits := strconv.FormatUint(id.Quadkey(), 4)
	if pad := int(id.Z) - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return digits
}

// ParseTileID parses "lod-x-y".
func ParseTileID(s string) (maptile.Tile, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return maptile.Tile{}, fmt.Errorf("tile id %q: want lod-x-y", s)
	}
	var v [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return maptile.Tile{}, fmt.Errorf("tile id %q: %w", s, err)
		}
		v[i] = n
	}
	if v[0] > maxLevel {
		return maptile.Tile{}, fmt.Errorf("tile id %q: level above %d", s, maxLevel)
	}
	id := maptile.New(uint32(v[1]), uint32(v[2]), maptile.Zoom(v[0]))
	if !id.Valid() {
		return maptile.Tile{}, fmt.Errorf("tile id %q: coordinates outside level %d", s, v[0])
	}
	return id, nil
}

func tileString(id maptile.Tile) string {
	return fmt.Sprintf("%d-%d-%d", id.Z, id.X, id.Y)
}

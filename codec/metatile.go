package codec

import (
	"fmt"
)

const (
	MetatileMagic   = "MT"
	MetatileVersion = 1
)

type MetanodeFlags uint8

const (
	MetanodeGeometry MetanodeFlags = 1 << iota
	MetanodeNavtile
	MetanodeChild0
	MetanodeChild1
	MetanodeChild2
	MetanodeChild3
)

func (f MetanodeFlags) Has(flag MetanodeFlags) bool {
	return f&flag != 0
}

// HasChild reports whether the child at quadtree index i (0..3) exists.
func (f MetanodeFlags) HasChild(i int) bool {
	return f.Has(MetanodeChild0 << i)
}

type Metanode struct {
	Flags            MetanodeFlags
	SurfaceReference uint16
	MinHeight        int16
	MaxHeight        int16
	InternalTextures uint8
}

// Metatile is a grid of metanodes rooted at (Level, X, Y). The grid says
// nothing about which surface it belongs to; that is up to the caller.
type Metatile struct {
	Level uint8
	X, Y  uint32
	SizeX uint16
	SizeY uint16
	Nodes []Metanode
}

// Node returns the metanode for tile (x, y) at the metatile level, or
// false when the tile lies outside the grid.
func (m *Metatile) Node(x, y uint32) (*Metanode, bool) {
	if x < m.X || y < m.Y {
		return nil, false
	}
	dx, dy := x-m.X, y-m.Y
	if dx >= uint32(m.SizeX) || dy >= uint32(m.SizeY) {
		return nil, false
	}
	return &m.Nodes[int(dy)*int(m.SizeX)+int(dx)], true
}

const metanodeSize = 1 + 2 + 2 + 2 + 1

func (m *Metatile) Size() int {
	return len(m.Nodes) * metanodeSize
}

func DecodeMetatile(data []byte) (*Metatile, error) {
	r := &reader{data: data}
	r.magic(MetatileMagic)
	version := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	if version != MetatileVersion {
		return nil, fmt.Errorf("%w: metatile version %d", ErrUnsupportedVersion, version)
	}

	mt := &Metatile{
		Level: r.u8(),
		X:     r.u32(),
		Y:     r.u32(),
		SizeX: r.u16(),
		SizeY: r.u16(),
	}
	count := int(mt.SizeX) * int(mt.SizeY)
	if r.err == nil && len(data)-r.pos < count*metanodeSize {
		return nil, fmt.Errorf("%w: %d metanodes need %d bytes, have %d", ErrTruncated, count, count*metanodeSize, len(data)-r.pos)
	}

	mt.Nodes = make([]Metanode, count)
	for i := range mt.Nodes {
		mt.Nodes[i] = Metanode{
			Flags:            MetanodeFlags(r.u8()),
			SurfaceReference: r.u16(),
			MinHeight:        r.i16(),
			MaxHeight:        r.i16(),
			InternalTextures: r.u8(),
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return mt, nil
}

func EncodeMetatile(mt *Metatile) []byte {
	w := &writer{}
	w.buf = append(w.buf, MetatileMagic...)
	w.u16(MetatileVersion)
	w.u8(mt.Level)
	w.u32(mt.X)
	w.u32(mt.Y)
	w.u16(mt.SizeX)
	w.u16(mt.SizeY)
	for _, n := range mt.Nodes {
		w.u8(uint8(n.Flags))
		w.u16(n.SurfaceReference)
		w.u16(uint16(n.MinHeight))
		w.u16(uint16(n.MaxHeight))
		w.u8(n.InternalTextures)
	}
	return w.buf
}

// Package gpu describes the renderer side the streaming engine talks to:
// a device that turns decoded payloads into GPU buffers, and a drawer that
// receives draw calls.
package gpu

import (
	"errors"
	"image"
	"sync"
)

var ErrOutOfMemory = errors.New("gpu: out of memory")

// Buffer is one GPU-resident object: a mesh, a texture or a point buffer.
type Buffer interface {
	Size() int
	Release()
}

type MeshData struct {
	Vertices    []float32
	InternalUVs []float32
	ExternalUVs []float32
	Indices     []uint16
}

type PointData struct {
	Positions []float32
	Colors    []uint8
}

type Device interface {
	CreateMesh(MeshData) (Buffer, error)
	CreateTexture(image.Image) (Buffer, error)
	CreatePoints(PointData) (Buffer, error)
}

type DrawCall struct {
	Mesh    Buffer
	Texture Buffer
	Mask    Buffer
	Opacity float32

	// UVTransform is {scaleX, scaleY, offsetX, offsetY}, applied to the
	// texture coordinates when the texture comes from an ancestor tile.
	UVTransform [4]float32

	Level int
	X, Y  uint32
}

type Drawer interface {
	Draw(DrawCall)
}

// Null is an accounting device. It allocates nothing but tracks live
// buffers and bytes, optionally enforcing a byte limit, and records draw
// calls so callers can inspect what a frame drew.
type Null struct {
	sync.Mutex

	Limit int

	live      int
	liveBytes int
	calls     []DrawCall
}

func NewNull(limit int) *Null {
	return &Null{Limit: limit}
}

type nullBuffer struct {
	dev      *Null
	size     int
	released bool
}

func (b *nullBuffer) Size() int {
	return b.size
}

func (b *nullBuffer) Release() {
	b.dev.Lock()
	defer b.dev.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.dev.live--
	b.dev.liveBytes -= b.size
}

func (n *Null) alloc(size int) (Buffer, error) {
	n.Lock()
	defer n.Unlock()
	if n.Limit > 0 && n.liveBytes+size > n.Limit {
		return nil, ErrOutOfMemory
	}
	n.live++
	n.liveBytes += size
	return &nullBuffer{dev: n, size: size}, nil
}

func (n *Null) CreateMesh(data MeshData) (Buffer, error) {
	size := 4*(len(data.Vertices)+len(data.InternalUVs)+len(data.ExternalUVs)) + 2*len(data.Indices)
	return n.alloc(size)
}

func (n *Null) CreateTexture(img image.Image) (Buffer, error) {
	b := img.Bounds()
	return n.alloc(b.Dx() * b.Dy() * 4)
}

func (n *Null) CreatePoints(data PointData) (Buffer, error) {
	return n.alloc(4*len(data.Positions) + len(data.Colors))
}

func (n *Null) Draw(call DrawCall) {
	n.Lock()
	defer n.Unlock()
	n.calls = append(n.calls, call)
}

// Calls returns the draw calls recorded since the last Reset.
func (n *Null) Calls() []DrawCall {
	n.Lock()
	defer n.Unlock()
	return append([]DrawCall(nil), n.calls...)
}

func (n *Null) Reset() {
	n.Lock()
	defer n.Unlock()
	n.calls = n.calls[:0]
}

// Live returns the number of unreleased buffers and their total size.
func (n *Null) Live() (int, int) {
	n.Lock()
	defer n.Unlock()
	return n.live, n.liveBytes
}

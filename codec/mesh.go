package codec

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

const (
	MeshMagic = "ME"

	MeshVersionMin = 1
	MeshVersionMax = 3
)

type SubmeshFlags uint8

const (
	SubmeshInternalUV SubmeshFlags = 1 << iota
	SubmeshExternalUV
	// SubmeshTextureMode marks submeshes textured from a bound layer
	// selected by TextureLayer rather than from their internal texture.
	SubmeshTextureMode
)

func (f SubmeshFlags) Has(flag SubmeshFlags) bool {
	return f&flag != 0
}

type BBox struct {
	Min [3]float64
	Max [3]float64
}

// Diagonal returns the length of the box diagonal in float32 precision,
// which is what the renderer works in.
func (b BBox) Diagonal() float32 {
	var sum float32
	for i := 0; i < 3; i++ {
		d := float32(b.Max[i] - b.Min[i])
		sum += d * d
	}
	return math32.Sqrt(sum)
}

type Submesh struct {
	Flags            SubmeshFlags
	SurfaceReference uint8
	TextureLayer     uint16
	BBox             BBox

	// Vertices holds xyz triplets dequantized into the bbox.
	Vertices    []float32
	InternalUVs []float32
	ExternalUVs []float32
	Indices     []uint16
}

func (s *Submesh) VertexCount() int {
	return len(s.Vertices) / 3
}

func (s *Submesh) FaceCount() int {
	return len(s.Indices) / 3
}

// Size is the number of CPU-side bytes held by the decoded arrays.
func (s *Submesh) Size() int {
	return 4*(len(s.Vertices)+len(s.InternalUVs)+len(s.ExternalUVs)) + 2*len(s.Indices)
}

type Mesh struct {
	Version        uint16
	MeanUndulation float64
	Submeshes      []*Submesh
}

func (m *Mesh) Size() int {
	size := 0
	for _, sm := range m.Submeshes {
		size += sm.Size()
	}
	return size
}

func DecodeMesh(data []byte) (*Mesh, error) {
	r := &reader{data: data}
	r.magic(MeshMagic)
	version := r.u16()
	if r.err != nil {
		return nil, r.err
	}
	if version < MeshVersionMin || version > MeshVersionMax {
		return nil, fmt.Errorf("%w: mesh version %d", ErrUnsupportedVersion, version)
	}

	mesh := &Mesh{
		Version:        version,
		MeanUndulation: r.f64(),
	}

	count := int(r.u16())
	mesh.Submeshes = make([]*Submesh, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		sm, err := decodeSubmesh(r, version)
		if err != nil {
			return nil, fmt.Errorf("submesh %d: %w", i, err)
		}
		mesh.Submeshes = append(mesh.Submeshes, sm)
	}
	if r.err != nil {
		return nil, r.err
	}
	return mesh, nil
}

func decodeSubmesh(r *reader, version uint16) (*Submesh, error) {
	sm := &Submesh{Flags: SubmeshFlags(r.u8())}
	if version >= 2 {
		sm.SurfaceReference = r.u8()
	}
	if version >= 3 {
		sm.TextureLayer = r.u16()
	}
	for i := 0; i < 3; i++ {
		sm.BBox.Min[i] = r.f64()
	}
	for i := 0; i < 3; i++ {
		sm.BBox.Max[i] = r.f64()
	}

	vertexCount := int(r.u16())
	sm.Vertices = make([]float32, 0, vertexCount*3)
	for v := 0; v < vertexCount; v++ {
		for i := 0; i < 3; i++ {
			q := float64(r.u16()) / math.MaxUint16
			sm.Vertices = append(sm.Vertices, float32(sm.BBox.Min[i]+(sm.BBox.Max[i]-sm.BBox.Min[i])*q))
		}
	}
	if sm.Flags.Has(SubmeshInternalUV) {
		sm.InternalUVs = readUVs(r, vertexCount)
	}
	if sm.Flags.Has(SubmeshExternalUV) {
		sm.ExternalUVs = readUVs(r, vertexCount)
	}

	faceCount := int(r.u16())
	sm.Indices = make([]uint16, 0, faceCount*3)
	for i := 0; i < faceCount*3; i++ {
		idx := r.u16()
		if r.err == nil && int(idx) >= vertexCount {
			return nil, fmt.Errorf("%w: index %d out of range (%d vertices)", ErrMalformed, idx, vertexCount)
		}
		sm.Indices = append(sm.Indices, idx)
	}
	if r.err != nil {
		return nil, r.err
	}
	return sm, nil
}

func readUVs(r *reader, vertexCount int) []float32 {
	uvs := make([]float32, 0, vertexCount*2)
	for i := 0; i < vertexCount*2; i++ {
		uvs = append(uvs, float32(r.u16())/math.MaxUint16)
	}
	return uvs
}

// EncodeMesh writes a mesh in the same layout DecodeMesh reads. Vertices
// are quantized into each submesh bbox so a round trip is lossy by at
// most one quantization step.
func EncodeMesh(m *Mesh) []byte {
	version := m.Version
	if version == 0 {
		version = MeshVersionMax
	}

	w := &writer{}
	w.buf = append(w.buf, MeshMagic...)
	w.u16(version)
	w.f64(m.MeanUndulation)
	w.u16(uint16(len(m.Submeshes)))

	for _, sm := range m.Submeshes {
		w.u8(uint8(sm.Flags))
		if version >= 2 {
			w.u8(sm.SurfaceReference)
		}
		if version >= 3 {
			w.u16(sm.TextureLayer)
		}
		for i := 0; i < 3; i++ {
			w.f64(sm.BBox.Min[i])
		}
		for i := 0; i < 3; i++ {
			w.f64(sm.BBox.Max[i])
		}

		vertexCount := sm.VertexCount()
		w.u16(uint16(vertexCount))
		for v := 0; v < vertexCount; v++ {
			for i := 0; i < 3; i++ {
				w.u16(quantize(float64(sm.Vertices[v*3+i]), sm.BBox.Min[i], sm.BBox.Max[i]))
			}
		}
		if sm.Flags.Has(SubmeshInternalUV) {
			writeUVs(w, sm.InternalUVs)
		}
		if sm.Flags.Has(SubmeshExternalUV) {
			writeUVs(w, sm.ExternalUVs)
		}

		w.u16(uint16(sm.FaceCount()))
		for _, idx := range sm.Indices[:sm.FaceCount()*3] {
			w.u16(idx)
		}
	}
	return w.buf
}

func writeUVs(w *writer, uvs []float32) {
	for _, uv := range uvs {
		w.u16(quantize(float64(uv), 0, 1))
	}
}

func quantize(v, min, max float64) uint16 {
	if max <= min {
		return 0
	}
	q := math.Round((v - min) / (max - min) * math.MaxUint16)
	return uint16(math.Max(0, math.Min(q, math.MaxUint16)))
}

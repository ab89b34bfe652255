package terrastream

import (
	"github.com/b1naryth1ef/terrastream/codec"
	"github.com/b1naryth1ef/terrastream/gpu"
)

// Mesh is a streamed terrain mesh. The decoded submeshes stay in memory
// after upload so GPU buffers can be rebuilt after a GPU eviction
// without refetching.
type Mesh struct {
	*resource

	mesh         *codec.Mesh
	gpuSubmeshes []gpu.Buffer
}

func newMesh(node *ResourceNode, path string) *Mesh {
	mesh := &Mesh{}
	mesh.resource = newResource(node, KindMesh, path, mesh)
	return mesh
}

func (m *Mesh) parse(data []byte) (int, error) {
	mesh, err := codec.DecodeMesh(data)
	if err != nil {
		return 0, err
	}
	m.mesh = mesh
	return mesh.Size(), nil
}

func (m *Mesh) releaseCPU() {
	m.mesh = nil
}

func (m *Mesh) needsGPU() bool {
	return true
}

func (m *Mesh) buildGPU() (int, error) {
	buffers := make([]gpu.Buffer, 0, len(m.mesh.Submeshes))
	size := 0
	for _, sm := range m.mesh.Submeshes {
		buf, err := m.m.device.CreateMesh(gpu.MeshData{
			Vertices:    sm.Vertices,
			InternalUVs: sm.InternalUVs,
			ExternalUVs: sm.ExternalUVs,
			Indices:     sm.Indices,
		})
		if err != nil {
			for _, b := range buffers {
				b.Release()
			}
			return 0, err
		}
		buffers = append(buffers, buf)
		size += buf.Size()
	}
	m.gpuSubmeshes = buffers
	return size, nil
}

func (m *Mesh) releaseGPU() {
	for _, b := range m.gpuSubmeshes {
		b.Release()
	}
	m.gpuSubmeshes = nil
}

// Submeshes returns the decoded submeshes, or nil until loaded.
func (m *Mesh) Submeshes() []*codec.Submesh {
	if m.mesh == nil {
		return nil
	}
	return m.mesh.Submeshes
}

// GPUSubmesh returns the uploaded buffer of submesh i, or nil.
func (m *Mesh) GPUSubmesh(i int) gpu.Buffer {
	if i < 0 || i >= len(m.gpuSubmeshes) {
		return nil
	}
	return m.gpuSubmeshes[i]
}

package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMesh() *Mesh {
	return &Mesh{
		Version:        MeshVersionMax,
		MeanUndulation: 12.25,
		Submeshes: []*Submesh{
			{
				Flags:            SubmeshInternalUV,
				SurfaceReference: 2,
				TextureLayer:     0,
				BBox:             BBox{Min: [3]float64{-50, -50, 0}, Max: [3]float64{50, 50, 20}},
				Vertices:         []float32{-50, -50, 0, 50, -50, 10, -50, 50, 20, 50, 50, 5},
				InternalUVs:      []float32{0, 0, 1, 0, 0, 1, 1, 1},
				Indices:          []uint16{0, 1, 2, 2, 1, 3},
			},
			{
				Flags:        SubmeshExternalUV | SubmeshTextureMode,
				TextureLayer: 3,
				BBox:         BBox{Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}},
				Vertices:     []float32{0, 0, 0, 1, 0, 0, 0, 1, 1},
				ExternalUVs:  []float32{0, 0, 0.5, 0, 0, 0.5},
				Indices:      []uint16{0, 1, 2},
			},
		},
	}
}

func TestMeshRoundTrip(t *testing.T) {
	mesh := sampleMesh()
	decoded, err := DecodeMesh(EncodeMesh(mesh))
	require.NoError(t, err)

	// Quantization to 16 bits costs at most one step of the bbox extent.
	approx := cmpopts.EquateApprox(0, 1e-3)
	if diff := cmp.Diff(mesh, decoded, approx); diff != "" {
		t.Fatalf("mesh mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 4, decoded.Submeshes[0].VertexCount())
	assert.Equal(t, 2, decoded.Submeshes[0].FaceCount())
	assert.Equal(t, mesh.Size(), decoded.Size())
}

func TestMeshOlderVersionsDropFields(t *testing.T) {
	mesh := sampleMesh()
	mesh.Version = MeshVersionMin

	decoded, err := DecodeMesh(EncodeMesh(mesh))
	require.NoError(t, err)
	assert.Equal(t, uint16(MeshVersionMin), decoded.Version)
	assert.Zero(t, decoded.Submeshes[0].SurfaceReference)
	assert.Zero(t, decoded.Submeshes[1].TextureLayer)
	assert.Equal(t, mesh.Submeshes[1].Flags, decoded.Submeshes[1].Flags)
}

func TestDecodeMeshErrors(t *testing.T) {
	valid := EncodeMesh(sampleMesh())

	outOfRange := sampleMesh()
	outOfRange.Submeshes[1].Indices = []uint16{0, 1, 7}

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrTruncated},
		{"bad magic", append([]byte("XX"), valid[2:]...), ErrBadMagic},
		{"future version", append([]byte("ME\x04\x00"), valid[4:]...), ErrUnsupportedVersion},
		{"zero version", append([]byte("ME\x00\x00"), valid[4:]...), ErrUnsupportedVersion},
		{"truncated", valid[:len(valid)-3], ErrTruncated},
		{"index out of range", EncodeMesh(outOfRange), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMesh(tt.data)
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestBBoxDiagonal(t *testing.T) {
	b := BBox{Min: [3]float64{1, 1, 1}, Max: [3]float64{4, 5, 1}}
	assert.InDelta(t, 5, b.Diagonal(), 1e-6)
}

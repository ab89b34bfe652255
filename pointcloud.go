package terrastream

import (
	"github.com/b1naryth1ef/terrastream/codec"
	"github.com/b1naryth1ef/terrastream/gpu"
)

// PointCloud is a block of points read from a byte range of a shared
// point file.
type PointCloud struct {
	*resource

	points *codec.PointCloud
	buffer gpu.Buffer
}

func newPointCloud(node *ResourceNode, path string, offset, size int64) *PointCloud {
	pc := &PointCloud{}
	pc.resource = newResource(node, KindPointCloud, path, pc)
	pc.offset = offset
	pc.length = size
	return pc
}

func (pc *PointCloud) parse(data []byte) (int, error) {
	points, err := codec.DecodePointCloud(data)
	if err != nil {
		return 0, err
	}
	pc.points = points
	return points.Size(), nil
}

func (pc *PointCloud) releaseCPU() {
	pc.points = nil
}

func (pc *PointCloud) needsGPU() bool {
	return true
}

func (pc *PointCloud) buildGPU() (int, error) {
	buf, err := pc.m.device.CreatePoints(gpu.PointData{
		Positions: pc.points.Positions,
		Colors:    pc.points.Colors,
	})
	if err != nil {
		return 0, err
	}
	pc.buffer = buf
	return buf.Size(), nil
}

func (pc *PointCloud) releaseGPU() {
	if pc.buffer != nil {
		pc.buffer.Release()
		pc.buffer = nil
	}
}

// Points returns the decoded points, or nil until loaded.
func (pc *PointCloud) Points() *codec.PointCloud {
	return pc.points
}

func (pc *PointCloud) Buffer() gpu.Buffer {
	return pc.buffer
}

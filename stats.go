package terrastream

import "time"

// Stats collects counters for diagnostics. Flux arrays hold
// {count, bytes} promoted to or dropped from the GPU since the last
// ResetFlux, which DrawFrame calls at the start of every frame.
type Stats struct {
	GPUMeshes        int `json:"gpuMeshes"`
	GPUMeshesBytes   int `json:"gpuMeshesBytes"`
	GPUTextures      int `json:"gpuTextures"`
	GPUTexturesBytes int `json:"gpuTexturesBytes"`
	GPUPoints        int `json:"gpuPoints"`
	GPUPointsBytes   int `json:"gpuPointsBytes"`

	GPUFluxIn  [2]int `json:"gpuFluxIn"`
	GPUFluxOut [2]int `json:"gpuFluxOut"`

	// GPURenderUsed is the GPU bytes the current frame has used so far.
	GPURenderUsed int `json:"gpuRenderUsed"`

	GPUBuildsFailed int `json:"gpuBuildsFailed"`

	RenderBuild time.Duration `json:"renderBuild"`
	ParseTime   time.Duration `json:"parseTime"`

	LoadsStarted   int `json:"loadsStarted"`
	LoadsSucceeded int `json:"loadsSucceeded"`
	LoadsFailed    int `json:"loadsFailed"`
}

func (s *Stats) gpuIn(kind ResourceKind, size int) {
	s.GPUFluxIn[0]++
	s.GPUFluxIn[1] += size
	s.addGPU(kind, 1, size)
}

func (s *Stats) gpuOut(kind ResourceKind, size int) {
	s.GPUFluxOut[0]++
	s.GPUFluxOut[1] += size
	s.addGPU(kind, -1, -size)
}

func (s *Stats) addGPU(kind ResourceKind, count, size int) {
	switch kind {
	case KindMesh:
		s.GPUMeshes += count
		s.GPUMeshesBytes += size
	case KindTexture:
		s.GPUTextures += count
		s.GPUTexturesBytes += size
	case KindPointCloud:
		s.GPUPoints += count
		s.GPUPointsBytes += size
	}
}

// ResetFlux starts a new flux interval.
func (s *Stats) ResetFlux() {
	s.GPUFluxIn = [2]int{}
	s.GPUFluxOut = [2]int{}
}

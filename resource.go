package terrastream

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/b1naryth1ef/terrastream/codec"
)

type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
	LoadError
)

func (s LoadState) String() string {
	switch s {
	case NotLoaded:
		return "not-loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadError:
		return "load-error"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

type ResourceKind int

const (
	KindMesh ResourceKind = iota
	KindTexture
	KindMetatile
	KindAvailability
	KindGeodata
	KindPointCloud
)

func (k ResourceKind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindTexture:
		return "texture"
	case KindMetatile:
		return "metatile"
	case KindAvailability:
		return "availability"
	case KindGeodata:
		return "geodata"
	case KindPointCloud:
		return "pointcloud"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// payload is the part of a resource that differs per asset type: how the
// downloaded bytes turn into CPU structures and those into GPU buffers.
type payload interface {
	parse(data []byte) (int, error)
	releaseCPU()
	needsGPU() bool
	buildGPU() (int, error)
	releaseGPU()
}

// resource is the load state machine shared by every streamed asset.
type resource struct {
	m       *Map
	id      ResourceID
	node    *ResourceNode
	kind    ResourceKind
	url     string
	offset  int64
	length  int64
	payload payload

	state      LoadState
	errorTime  time.Time
	errorCount int
	lastError  error
	dead       bool

	size         int
	gpuSize      int
	hasGPU       bool
	gpuErrorTime time.Time
	cacheItem    *CacheItem
	gpuCacheItem *CacheItem

	loadedFn func()
	errorFn  func(error)
}

func newResource(node *ResourceNode, kind ResourceKind, url string, p payload) *resource {
	r := &resource{
		m:       node.m,
		node:    node,
		kind:    kind,
		url:     url,
		payload: p,
	}
	r.id = node.m.arena.add(r)
	node.resources = append(node.resources, r)
	return r
}

// IsReady reports whether the resource can be used right now and, unless
// doNotLoad is set, schedules whatever work is needed to make it usable:
// a fetch when nothing is loaded, a retry once the error backoff has
// passed, or a GPU upload when the GPU budget allows it. Calling it again
// without a state change has no further effect.
func (r *resource) IsReady(doNotLoad bool, priority float64, doNotCheckGPU bool) bool {
	if r.dead {
		return false
	}

	switch r.state {
	case Loaded:
		if !doNotCheckGPU && r.payload.needsGPU() && !r.hasGPU {
			if doNotLoad || r.m.gpuBudgetExhausted() || r.gpuBackoff() {
				return false
			}
			if !r.buildGPU() {
				return false
			}
		}
		r.m.cpuCache.Touch(r.cacheItem)
		if r.hasGPU {
			r.m.gpuCache.Touch(r.gpuCacheItem)
			r.m.stats.GPURenderUsed += r.gpuSize
		}
		return true
	case NotLoaded:
		if !doNotLoad {
			r.scheduleLoad(priority)
		}
		return false
	case LoadError:
		if !doNotLoad && r.canRetry() {
			r.scheduleLoad(priority)
		}
		return false
	case Loading:
		return false
	}
	return false
}

func (r *resource) canRetry() bool {
	s := r.m.settings
	return r.errorCount <= s.MaxRetryCount && r.m.now().After(r.errorTime.Add(s.RetryBackoff))
}

// Failed reports whether the resource has used up its retries.
func (r *resource) Failed() bool {
	return r.state == LoadError && r.errorCount > r.m.settings.MaxRetryCount
}

func (r *resource) scheduleLoad(priority float64) {
	r.state = Loading
	r.m.stats.LoadsStarted++
	r.m.load(r, priority)
}

func (r *resource) onLoaded(data []byte) {
	start := time.Now()
	size, err := r.payload.parse(data)
	r.m.stats.ParseTime += time.Since(start)
	if err != nil {
		r.onLoadError(err)
		return
	}

	r.size = size
	r.cacheItem = r.m.cpuCache.Insert(r.id, size)
	r.state = Loaded
	r.errorCount = 0
	r.errorTime = time.Time{}
	r.lastError = nil
	r.m.stats.LoadsSucceeded++
	r.m.MarkDirty()

	if r.loadedFn != nil {
		r.loadedFn()
	}
}

func (r *resource) onLoadError(err error) {
	s := r.m.settings

	r.state = LoadError
	r.errorTime = r.m.now()
	r.errorCount++
	r.lastError = err
	if errors.Is(err, codec.ErrMalformed) && !s.RetryMalformed {
		r.errorCount = s.MaxRetryCount + 1
	}
	r.m.stats.LoadsFailed++

	if r.errorCount <= s.MaxRetryCount {
		log.Printf("[resource] failed to load %s %s (attempt %d), retrying in %s: %v", r.kind, r.url, r.errorCount, s.RetryBackoff, err)
		r.m.markDirtyAfter(s.RetryBackoff)
	} else {
		log.Printf("[resource] giving up on %s %s after %d attempts: %v", r.kind, r.url, r.errorCount, err)
	}

	if r.errorFn != nil {
		r.errorFn(err)
	}
}

// gpuBackoff reports whether a failed upload is too recent to try again.
func (r *resource) gpuBackoff() bool {
	if r.gpuErrorTime.IsZero() {
		return false
	}
	return !r.m.now().After(r.gpuErrorTime.Add(r.m.settings.RetryBackoff))
}

func (r *resource) buildGPU() bool {
	start := time.Now()
	size, err := r.payload.buildGPU()
	r.m.stats.RenderBuild += time.Since(start)
	if err != nil {
		r.gpuErrorTime = r.m.now()
		r.m.stats.GPUBuildsFailed++
		log.Printf("[resource] failed to upload %s %s, retrying in %s: %v", r.kind, r.url, r.m.settings.RetryBackoff, err)
		r.m.markDirtyAfter(r.m.settings.RetryBackoff)
		return false
	}

	r.gpuErrorTime = time.Time{}
	r.hasGPU = true
	r.gpuSize = size
	r.gpuCacheItem = r.m.gpuCache.Insert(r.id, size)
	r.m.stats.gpuIn(r.kind, size)
	return true
}

// killGPU drops the GPU payload. killedByCache is set when the GPU cache
// itself evicted the item, which then must not be removed again.
func (r *resource) killGPU(killedByCache bool) {
	if !r.hasGPU {
		return
	}
	r.payload.releaseGPU()
	r.m.stats.gpuOut(r.kind, r.gpuSize)
	if !killedByCache {
		r.m.gpuCache.Remove(r.gpuCacheItem)
	}
	r.gpuCacheItem = nil
	r.gpuSize = 0
	r.hasGPU = false
}

// kill drops both payloads and returns the resource to NotLoaded so the
// next IsReady fetches it again. killedByCache is set when the CPU cache
// evicted the item. Error bookkeeping survives a kill.
func (r *resource) kill(killedByCache bool) {
	r.killGPU(false)
	if r.state == Loaded {
		r.payload.releaseCPU()
	}
	if !killedByCache {
		r.m.cpuCache.Remove(r.cacheItem)
	}
	r.cacheItem = nil
	r.size = 0
	if r.state != LoadError {
		r.state = NotLoaded
	}
}

// release kills the resource for good and frees its arena slot.
func (r *resource) release() {
	r.kill(false)
	r.dead = true
	r.m.arena.release(r.id)
}

func (r *resource) State() LoadState {
	return r.state
}

func (r *resource) URL() string {
	return r.url
}

func (r *resource) Kind() ResourceKind {
	return r.kind
}

func (r *resource) Size() int {
	return r.size
}

func (r *resource) GPUSize() int {
	return r.gpuSize
}

func (r *resource) HasGPU() bool {
	return r.hasGPU
}

func (r *resource) ErrorCount() int {
	return r.errorCount
}

func (r *resource) LastError() error {
	return r.lastError
}

// Dead reports whether the owning node was killed.
func (r *resource) Dead() bool {
	return r.dead
}

// OnLoaded sets the callback run after a successful load.
func (r *resource) OnLoaded(fn func()) {
	r.loadedFn = fn
}

// OnError sets the callback run after each failed load.
func (r *resource) OnError(fn func(error)) {
	r.errorFn = fn
}

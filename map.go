package terrastream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/b1naryth1ef/terrastream/gpu"
)

// LoadRequest describes one fetch handed to a Loader.
type LoadRequest struct {
	URL      string
	Kind     ResourceKind
	Priority float64
	Tile     maptile.Tile

	// Offset and Length select a byte range; a zero Length means the
	// whole object.
	Offset int64
	Length int64
}

// Loader fetches tile store objects. Load must not block; done is called
// exactly once, from any goroutine including the caller of Load, when the
// fetch finishes or fails.
type Loader interface {
	Load(ctx context.Context, req LoadRequest, done func(data []byte, err error))
}

type MapOptions struct {
	Settings Settings
	Style    *Style
	Loader   Loader
	Device   gpu.Device

	// Clock defaults to time.Now. Retry backoff is measured with it.
	Clock func() time.Time
}

type completion struct {
	id   ResourceID
	data []byte
	err  error
}

// Map owns everything the streaming engine shares: the resource tree, the
// CPU and GPU caches, the arena the caches point into, stats and the
// completion queue. All of it except the queue and the dirty/killed flags
// is only touched from the goroutine driving frames.
type Map struct {
	settings Settings
	style    *Style
	loader   Loader
	device   gpu.Device
	now      func() time.Time

	stats    *Stats
	arena    *resourceArena
	cpuCache *Cache
	gpuCache *Cache
	root     *ResourceNode

	completions chan completion
	overflowMu  sync.Mutex
	overflow    []completion
	ctx         context.Context
	cancel      context.CancelFunc

	frame  int
	dirty  atomic.Bool
	killed atomic.Bool
}

func NewMap(opts MapOptions) *Map {
	settings := opts.Settings
	if settings.QueueSize <= 0 {
		settings.QueueSize = DefaultSettings().QueueSize
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	style := opts.Style
	if style == nil {
		style = &Style{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Map{
		settings:    settings,
		style:       style,
		loader:      opts.Loader,
		device:      opts.Device,
		now:         clock,
		stats:       &Stats{},
		arena:       &resourceArena{},
		completions: make(chan completion, settings.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	m.cpuCache = NewCache("cpu", settings.CPUCacheSize, func(owner ResourceID) {
		if r := m.arena.get(owner); r != nil {
			r.cacheItem = nil
			r.kill(true)
		}
	})
	m.gpuCache = NewCache("gpu", settings.GPUCacheSize, func(owner ResourceID) {
		if r := m.arena.get(owner); r != nil {
			r.gpuCacheItem = nil
			r.killGPU(true)
		}
	})

	m.root = newResourceNode(m, nil, maptile.New(0, 0, 0))
	m.dirty.Store(true)
	return m
}

func (m *Map) load(r *resource, priority float64) {
	if m.loader == nil || m.killed.Load() {
		return
	}
	id := r.id
	req := LoadRequest{
		URL:      r.url,
		Kind:     r.kind,
		Priority: priority,
		Tile:     r.node.id,
		Offset:   r.offset,
		Length:   r.length,
	}
	m.loader.Load(m.ctx, req, func(data []byte, err error) {
		m.post(completion{id: id, data: data, err: err})
	})
}

// post queues a completion for the frame goroutine. It never blocks:
// completions that do not fit in the channel wait in an overflow list,
// since done may run on the frame goroutine itself.
func (m *Map) post(c completion) {
	if m.killed.Load() {
		return
	}
	select {
	case m.completions <- c:
	default:
		m.overflowMu.Lock()
		m.overflow = append(m.overflow, c)
		m.overflowMu.Unlock()
	}
}

func (m *Map) next() (completion, bool) {
	select {
	case c := <-m.completions:
		return c, true
	default:
	}

	m.overflowMu.Lock()
	defer m.overflowMu.Unlock()
	if len(m.overflow) == 0 {
		return completion{}, false
	}
	c := m.overflow[0]
	m.overflow[0] = completion{}
	m.overflow = m.overflow[1:]
	return c, true
}

// ProcessQueue applies queued load completions (parse, cache
// registration, callbacks) until the queue is empty or budget is spent.
// At least one completion is processed per call when any is queued. A
// budget of zero drains the queue.
func (m *Map) ProcessQueue(budget time.Duration) int {
	start := time.Now()
	processed := 0
	for {
		if budget > 0 && processed > 0 && time.Since(start) >= budget {
			return processed
		}
		c, ok := m.next()
		if !ok {
			return processed
		}
		m.complete(c)
		processed++
	}
}

// Pending is the number of completions waiting to be processed.
func (m *Map) Pending() int {
	m.overflowMu.Lock()
	defer m.overflowMu.Unlock()
	return len(m.completions) + len(m.overflow)
}

func (m *Map) complete(c completion) {
	if m.killed.Load() {
		return
	}
	r := m.arena.get(c.id)
	if r == nil || r.state != Loading {
		return
	}
	if c.err != nil {
		r.onLoadError(c.err)
		return
	}
	r.onLoaded(c.data)
}

func (m *Map) gpuBudgetExhausted() bool {
	return m.stats.GPURenderUsed >= m.settings.MaxGPUUsed
}

func (m *Map) MarkDirty() {
	m.dirty.Store(true)
}

func (m *Map) markDirtyAfter(d time.Duration) {
	time.AfterFunc(d, func() {
		if !m.killed.Load() {
			m.MarkDirty()
		}
	})
}

// Dirty reports whether something changed since the last drawn frame.
func (m *Map) Dirty() bool {
	return m.dirty.Load()
}

// BeginFrame starts a new frame: per-frame GPU usage accounting restarts
// and the dirty flag is cleared.
func (m *Map) BeginFrame() {
	m.frame++
	m.stats.GPURenderUsed = 0
	m.dirty.Store(false)
}

func (m *Map) Frame() int {
	return m.frame
}

// FindNode returns the node for id, walking down from the root. Missing
// nodes are created when create is set, otherwise nil is returned. Every
// node on the path is marked as used in the current frame.
func (m *Map) FindNode(id maptile.Tile, create bool) *ResourceNode {
	node := m.root
	node.lastFrame = m.frame
	for level := maptile.Zoom(1); level <= id.Z; level++ {
		shift := id.Z - level
		index := int((id.X>>shift)&1) + 2*int((id.Y>>shift)&1)
		child := node.children[index]
		if child == nil {
			if !create {
				return nil
			}
			child = node.AddChild(index)
		}
		child.lastFrame = m.frame
		node = child
	}
	return node
}

// Kill tears the map down: pending loads are cancelled, queued
// completions are dropped and every resource is released.
func (m *Map) Kill() {
	if m.killed.Swap(true) {
		return
	}
	m.cancel()
	m.root.Kill()
	for {
		if _, ok := m.next(); !ok {
			break
		}
	}
	log.Printf("[map] killed after %d frames", m.frame)
}

func (m *Map) Killed() bool {
	return m.killed.Load()
}

func (m *Map) Root() *ResourceNode {
	return m.root
}

func (m *Map) Stats() *Stats {
	return m.stats
}

func (m *Map) Style() *Style {
	return m.style
}

func (m *Map) Settings() Settings {
	return m.settings
}

func (m *Map) CPUCache() *Cache {
	return m.cpuCache
}

func (m *Map) GPUCache() *Cache {
	return m.gpuCache
}

// LiveResources is the number of resources currently registered.
func (m *Map) LiveResources() int {
	return m.arena.len()
}
